package domain

import "io"

// FileUpload is one file received from a multipart form.
type FileUpload struct {
	Name string
	Body io.Reader
}
