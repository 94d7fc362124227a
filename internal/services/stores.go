package services

import (
	"context"

	"siyuan-ocr/internal/models"
)

// AssetStore persists a binary asset and returns the path documents should
// reference it by.
type AssetStore interface {
	UploadAsset(ctx context.Context, data []byte, filename string) (string, error)
}

// DocumentStore creates a note from markdown and returns its id.
type DocumentStore interface {
	CreateDocWithMarkdown(ctx context.Context, notebookID, path, markdown string) (string, error)
}

// NotebookLister lists the open notebooks of the notes host.
type NotebookLister interface {
	ListNotebooks(ctx context.Context) ([]models.Notebook, error)
}

// DocumentReader is implemented by backends that can read documents back.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

// NotebookCreator is implemented by backends that manage their own notebooks.
type NotebookCreator interface {
	CreateNotebook(ctx context.Context, name, icon string) (*models.Notebook, error)
}
