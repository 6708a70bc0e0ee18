package agent

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/systmms/secretmgr/internal/delegate"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	smgr "github.com/systmms/secretmgr/pkg/secretmanager"
)

// cyberArkOp handles CyberArk's central credential provider. CCP is
// strictly read-only: secrets are fetched by query against the web
// service, never created or deleted from here.
func (a *Agent) cyberArkOp(ctx context.Context, req delegate.Request, cfg *smgr.CyberArkConfig) (*delegate.Response, error) {
	client, err := cyberArkHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case delegate.OpValidateConfig:
		// Any HTTP response proves reachability and, with a client cert
		// configured, a completed TLS handshake. CCP answers 400 to a
		// query-less request.
		resp, err := ccpGet(ctx, client, cfg, "")
		if err != nil {
			return nil, err
		}
		resp.Body.Close()
		return respond(nil), nil

	case delegate.OpFetchSecret:
		query := payloadString(req, "path")
		if query == "" {
			query = payloadString(req, "name")
		}
		resp, err := ccpGet(ctx, client, cfg, query)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, smerrors.SecretManagementError{
				Message:    "CyberArk returned " + resp.Status + ": " + strings.TrimSpace(string(body)),
				Suggestion: "check the AppID, the query and the provider's access policy",
			}
		}
		var out struct {
			Content string `json:"Content"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"value": out.Content}), nil

	case delegate.OpCreateSecret, delegate.OpDeleteSecret:
		return nil, unsupported(req.Operation, "read-only CyberArk")
	}
	return nil, unsupported(req.Operation, "CyberArk")
}

func ccpGet(ctx context.Context, client *http.Client, cfg *smgr.CyberArkConfig, query string) (*http.Response, error) {
	endpoint := strings.TrimSuffix(cfg.URL, "/") + "/AIMWebService/api/Accounts"
	params := url.Values{}
	params.Set("AppID", cfg.AppID)
	if query != "" {
		params.Set("Query", query)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return client.Do(httpReq)
}

// cyberArkHTTPClient builds the client, loading the optional mutual-TLS
// certificate. The certificate value is a PEM bundle holding both the
// certificate and its private key.
func cyberArkHTTPClient(cfg *smgr.CyberArkConfig) (*http.Client, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	if cfg.ClientCertificate == "" || cfg.ClientCertificate == smgr.Mask {
		return client, nil
	}
	pem := []byte(cfg.ClientCertificate)
	cert, err := tls.X509KeyPair(pem, pem)
	if err != nil {
		return nil, smerrors.ValidationError{
			Field:      "clientCertificate",
			Message:    "client certificate is not a valid PEM bundle",
			Suggestion: "provide the certificate and its private key in one PEM block",
		}
	}
	client.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}
	return client, nil
}
