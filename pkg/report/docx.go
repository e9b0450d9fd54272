package report

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
)

// Template is a loaded .docx report template. The original package bytes are
// kept so every part other than word/document.xml can be copied through
// untouched when the filled report is written.
type Template struct {
	source []byte
	doc    *Document
}

// OpenTemplate reads and parses a .docx template from disk.
func OpenTemplate(path string) (*Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("open", path, err)
	}
	tpl, err := LoadTemplate(content)
	if err != nil {
		if de, ok := err.(*DocumentError); ok {
			de.Path = path
			return nil, de
		}
		return nil, err
	}
	return tpl, nil
}

// LoadTemplate parses a .docx template from its raw bytes.
func LoadTemplate(content []byte) (*Template, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, NewDocumentError("open", "", fmt.Errorf("not a zip archive: %w", err))
	}

	var docFile *zip.File
	for _, file := range zr.File {
		if file.Name == "word/document.xml" {
			docFile = file
			break
		}
	}
	if docFile == nil {
		return nil, NewDocumentError("open", "", fmt.Errorf("not a valid DOCX file: missing word/document.xml"))
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, NewDocumentError("read", "word/document.xml", err)
	}
	defer rc.Close()
	docXML, err := io.ReadAll(rc)
	if err != nil {
		return nil, NewDocumentError("read", "word/document.xml", err)
	}

	doc, err := ParseDocument(docXML)
	if err != nil {
		return nil, NewDocumentError("parse", "word/document.xml", err)
	}

	return &Template{source: content, doc: doc}, nil
}

// Document returns the parsed body of the template.
func (t *Template) Document() *Document {
	return t.doc
}

// Write serializes the filled template: the re-rendered word/document.xml
// plus every other package part copied byte for byte from the source.
func (t *Template) Write(w io.Writer) error {
	zr, err := zip.NewReader(bytes.NewReader(t.source), int64(len(t.source)))
	if err != nil {
		return NewDocumentError("write", "", fmt.Errorf("failed to read source zip: %w", err))
	}

	zw := zip.NewWriter(w)
	for _, file := range zr.File {
		fw, err := zw.Create(file.Name)
		if err != nil {
			return NewDocumentError("write", file.Name, err)
		}
		if file.Name == "word/document.xml" {
			if _, err := fw.Write(t.doc.Marshal()); err != nil {
				return NewDocumentError("write", file.Name, err)
			}
			continue
		}
		fr, err := file.Open()
		if err != nil {
			return NewDocumentError("write", file.Name, err)
		}
		if _, err := io.Copy(fw, fr); err != nil {
			fr.Close()
			return NewDocumentError("write", file.Name, err)
		}
		fr.Close()
	}
	if err := zw.Close(); err != nil {
		return NewDocumentError("write", "", err)
	}
	return nil
}

// Save writes the filled template to a file.
func (t *Template) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return NewDocumentError("save", path, err)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return NewDocumentError("save", path, err)
	}
	return nil
}
