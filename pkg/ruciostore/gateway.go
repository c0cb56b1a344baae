package ruciostore

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// gatewayClient speaks the rucio gateway's HTTP protocol. It has the same
// shape as the remote data broker protocol (JSON request bodies, /meta
// /download /upload /delete /list endpoints) with rucio's scope, RSE and
// scheme parameters added, plus a /register endpoint for register-only
// deployments.
type gatewayClient struct {
	base  string
	scope string
	token string
	hc    *http.Client
}

func newGatewayClient(cfg Config) (*gatewayClient, error) {
	c := &gatewayClient{
		base:  strings.TrimRight(cfg.GatewayURL, "/"),
		scope: cfg.Scope,
		token: cfg.AuthToken,
		hc:    &http.Client{Timeout: 10 * time.Minute},
	}
	if c.token == "" && cfg.OIDCProvider != "" {
		token, err := fetchOIDCToken(c.hc, cfg.OIDCProvider)
		if err != nil {
			return nil, err
		}
		c.token = token
	}
	return c, nil
}

// fetchOIDCToken asks the issuer for a bearer token. The exchange details
// live on the issuer side; the gateway only ever sees the opaque token.
func fetchOIDCToken(hc *http.Client, provider string) (string, error) {
	resp, err := hc.Get(strings.TrimRight(provider, "/") + "/token")
	if err != nil {
		return "", errors.Wrap(err, "requesting oidc token")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("oidc provider returned %s", resp.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decoding oidc token response")
	}
	return out.Token, nil
}

type gatewayMeta struct {
	Exists bool  `json:"exists"`
	Size   int64 `json:"size"`
}

type gatewayRequest struct {
	Scope          string `json:"scope"`
	Key            string `json:"key"`
	Token          string `json:"token"`
	RSE            string `json:"rse,omitempty"`
	Scheme         string `json:"scheme,omitempty"`
	IgnoreChecksum bool   `json:"ignore_checksum,omitempty"`
	PFN            string `json:"pfn,omitempty"`
	Size           int64  `json:"size,omitempty"`
}

func (c *gatewayClient) Meta(key string) (gatewayMeta, error) {
	var meta gatewayMeta
	resp, err := c.post("/meta", gatewayRequest{Scope: c.scope, Key: key, Token: c.token})
	if err != nil {
		return meta, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return meta, errors.Errorf("rucio gateway /meta returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return meta, errors.Wrap(err, "decoding rucio gateway /meta response")
	}
	return meta, nil
}

func (c *gatewayClient) Download(key string, scheme DownloadScheme) (io.ReadCloser, error) {
	resp, err := c.post("/download", gatewayRequest{
		Scope:          c.scope,
		Key:            key,
		Token:          c.token,
		RSE:            scheme.RSE,
		Scheme:         scheme.Scheme,
		IgnoreChecksum: scheme.IgnoreChecksum,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("rucio gateway /download returned %s", resp.Status)
	}
	return resp.Body, nil
}

func (c *gatewayClient) Upload(key string, r io.Reader, rse, scheme string) error {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			fields := map[string]string{
				"scope":  c.scope,
				"key":    key,
				"token":  c.token,
				"rse":    rse,
				"scheme": scheme,
			}
			for name, value := range fields {
				if err := form.WriteField(name, value); err != nil {
					return err
				}
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
		return errors.Wrap(err, "rucio gateway /upload")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("rucio gateway /upload returned %s", resp.Status)
	}
	return nil
}

// Register records an externally resident replica by its physical file
// name without moving any bytes.
func (c *gatewayClient) Register(key, pfn, rse string, size int64) error {
	resp, err := c.post("/register", gatewayRequest{
		Scope: c.scope,
		Key:   key,
		Token: c.token,
		RSE:   rse,
		PFN:   pfn,
		Size:  size,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("rucio gateway /register returned %s", resp.Status)
	}
	return nil
}

func (c *gatewayClient) Delete(key string) error {
	resp, err := c.post("/delete", gatewayRequest{Scope: c.scope, Key: key, Token: c.token})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return errors.Errorf("rucio gateway /delete returned %s", resp.Status)
	}
	return nil
}

func (c *gatewayClient) List(prefix string) ([]string, error) {
	resp, err := c.post("/list", gatewayRequest{Scope: c.scope, Key: prefix, Token: c.token})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("rucio gateway /list returned %s", resp.Status)
	}
	var out struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decoding rucio gateway /list response")
	}
	return out.Keys, nil
}

func (c *gatewayClient) post(path string, body gatewayRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "rucio gateway "+strconv.Quote(path))
	}
	return resp, nil
}
