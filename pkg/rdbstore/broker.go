// Remote-data-broker backend. The broker fronts whatever storage the
// deployment actually uses behind a small HTTP/JSON protocol, so this
// package only ever speaks to the broker, never to a storage SDK.
package rdbstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Meta is the broker's answer to a /meta request.
type Meta struct {
	Exists bool  `json:"exists"`
	Size   int64 `json:"size"`
}

// Client speaks the remote-data-broker HTTP protocol. Endpoints take a
// JSON body of the form {"key": ..., "token": ...}; /meta responds with
// a Meta document, /download responds with the raw bytes, /upload takes
// a multipart form (fields key and token plus a "file" part).
type Client struct {
	base  string
	token string
	hc    *http.Client
}

func NewClient(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		hc:    &http.Client{Timeout: 10 * time.Minute},
	}
}

type keyRequest struct {
	Key   string `json:"key"`
	Token string `json:"token"`
}

func (c *Client) Meta(key string) (Meta, error) {
	var meta Meta
	resp, err := c.postJSON("/meta", keyRequest{Key: key, Token: c.token})
	if err != nil {
		return meta, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return meta, errors.Errorf("broker /meta returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return meta, errors.Wrap(err, "decoding broker /meta response")
	}
	return meta, nil
}

// Download streams the content of key. The caller owns the returned
// reader.
func (c *Client) Download(key string) (io.ReadCloser, error) {
	resp, err := c.postJSON("/download", keyRequest{Key: key, Token: c.token})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.Errorf("broker has no object %s", key)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("broker /download returned %s", resp.Status)
	}
	return resp.Body, nil
}

// Upload streams r to the broker under key.
func (c *Client) Upload(key string, r io.Reader) error {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := form.WriteField("key", key); err != nil {
				return err
			}
			if err := form.WriteField("token", c.token); err != nil {
				return err
			}
			part, err := form.CreateFormFile("file", key)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, r); err != nil {
				return err
			}
			return form.Close()
		}()
		pw.CloseWithError(err)
	}()

	resp, err := c.hc.Post(c.base+"/upload", form.FormDataContentType(), pr)
	if err != nil {
		return errors.Wrap(err, "broker /upload")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("broker /upload returned %s", resp.Status)
	}
	return nil
}

func (c *Client) Delete(key string) error {
	resp, err := c.postJSON("/delete", keyRequest{Key: key, Token: c.token})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return errors.Errorf("broker /delete returned %s", resp.Status)
	}
	return nil
}

// List returns every key the broker holds under prefix.
func (c *Client) List(prefix string) ([]string, error) {
	resp, err := c.postJSON("/list", keyRequest{Key: prefix, Token: c.token})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("broker /list returned %s", resp.Status)
	}
	var out struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decoding broker /list response")
	}
	return out.Keys, nil
}

func (c *Client) postJSON(path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("broker %s", path))
	}
	return resp, nil
}
