package sshx

import (
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
)

// Upload writes the content of r to the remote file at dst, creating
// parent directories as needed, and applies mode to it.
func (client *Client) Upload(dst string, r io.Reader, mode os.FileMode) error {
	sftpClient, err := sftp.NewClient(client.Client)
	if err != nil {
		return &ProtocolError{Host: client.Host, Request: "sftp", Err: err}
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(dst)); err != nil {
		return err
	}

	file, err := sftpClient.Create(dst)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return err
	}

	client.Logger.Debug().Str("path", dst).Msg("Uploaded file")

	return file.Chmod(mode)
}
