package siyuan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newKernel(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", srv.Client())
}

func TestListNotebooks_FiltersClosedAndSorts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notebook/lsNotebooks", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token tok" {
			t.Errorf("Authorization = %q", got)
		}
		io.WriteString(w, `{"code":0,"msg":"","data":{"notebooks":[
			{"id":"b","name":"Second","icon":"1f4d4","sort":2,"closed":false},
			{"id":"c","name":"Closed","icon":"","sort":0,"closed":true},
			{"id":"a","name":"First","icon":"","sort":1,"closed":false}
		]}}`)
	})
	client := newKernel(t, mux)

	notebooks, err := client.ListNotebooks(context.Background())
	if err != nil {
		t.Fatalf("ListNotebooks: %v", err)
	}
	if len(notebooks) != 2 {
		t.Fatalf("got %d notebooks, want 2: %+v", len(notebooks), notebooks)
	}
	if notebooks[0].ID != "a" || notebooks[1].ID != "b" {
		t.Errorf("unexpected order: %+v", notebooks)
	}
	if notebooks[1].Icon != "1f4d4" {
		t.Errorf("icon not carried over: %+v", notebooks[1])
	}
}

func TestListNotebooks_KernelError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notebook/lsNotebooks", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":-1,"msg":"workspace locked","data":null}`)
	})
	client := newKernel(t, mux)

	_, err := client.ListNotebooks(context.Background())
	var kernelErr *Error
	if !errors.As(err, &kernelErr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if kernelErr.Msg != "workspace locked" || kernelErr.Code != -1 {
		t.Errorf("unexpected error: %+v", kernelErr)
	}
}

func TestCreateDocWithMarkdown(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "bare id", data: `"20261019120000-abcdefg"`, want: "20261019120000-abcdefg"},
		{name: "wrapped id", data: `{"id":"20261019120000-hijklmn"}`, want: "20261019120000-hijklmn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			mux := http.NewServeMux()
			mux.HandleFunc("/api/filetree/createDocWithMd", func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode request: %v", err)
				}
				io.WriteString(w, `{"code":0,"msg":"","data":`+tt.data+`}`)
			})
			client := newKernel(t, mux)

			id, err := client.CreateDocWithMarkdown(context.Background(), "nb1", "/Folder/Doc", "# Hi")
			if err != nil {
				t.Fatalf("CreateDocWithMarkdown: %v", err)
			}
			if id != tt.want {
				t.Errorf("id = %q, want %q", id, tt.want)
			}
			if got["notebook"] != "nb1" || got["path"] != "/Folder/Doc" || got["markdown"] != "# Hi" {
				t.Errorf("unexpected request: %v", got)
			}
		})
	}
}

func TestCreateDocWithMarkdown_HTTPFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/filetree/createDocWithMd", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	client := newKernel(t, mux)

	if _, err := client.CreateDocWithMarkdown(context.Background(), "nb", "/Doc", "x"); err == nil {
		t.Fatal("expected an error for HTTP 500")
	}
}

func TestUploadAsset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/asset/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("assetsDirPath"); got != AssetsDirPath {
			t.Errorf("assetsDirPath = %q", got)
		}
		files := r.MultipartForm.File["file[]"]
		if len(files) != 1 {
			t.Errorf("got %d files, want 1", len(files))
			return
		}
		f, _ := files[0].Open()
		data, _ := io.ReadAll(f)
		f.Close()
		if string(data) != "png-bytes" {
			t.Errorf("uploaded data = %q", data)
		}
		io.WriteString(w, `{"code":0,"msg":"","data":{"errFiles":[],"succMap":{"`+files[0].Filename+`":"assets/`+files[0].Filename+`"}}}`)
	})
	client := newKernel(t, mux)

	stored, err := client.UploadAsset(context.Background(), []byte("png-bytes"), "ocr_20261019120000-abc1234.png")
	if err != nil {
		t.Fatalf("UploadAsset: %v", err)
	}
	if stored != "assets/ocr_20261019120000-abc1234.png" {
		t.Errorf("stored = %q", stored)
	}
}

func TestUploadAsset_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/asset/upload", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"msg":"","data":{"errFiles":["x.png"],"succMap":{}}}`)
	})
	client := newKernel(t, mux)

	if _, err := client.UploadAsset(context.Background(), []byte("x"), "x.png"); err == nil {
		t.Fatal("expected an error when the kernel rejects the file")
	}
}
