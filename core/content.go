package core

import "encoding/json"

// ContentKind identifies the content type a request asked for.
type ContentKind string

const (
	ContentFileList ContentKind = "file_list"
	ContentAccounts ContentKind = "accounts"
	ContentFile     ContentKind = "file"
	ContentFileJSON ContentKind = "file_json"
)

type FileList struct {
	FileList []string `json:"fileList"`
}

type AccountService struct {
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

type Account struct {
	ID      string         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Number  string         `json:"number,omitempty"`
	Service AccountService `json:"service"`
}

type Accounts struct {
	Accounts []Account `json:"accounts"`
}

// FileResponse is a decrypted data file. Items keep their server shape.
type FileResponse struct {
	FileID      string            `json:"-"`
	FileContent []json.RawMessage `json:"fileContent"`
}
