// Package kusto is a minimal Azure Data Explorer (Kusto) REST v1 client and
// the core.TableStore built on it.
//
// Requests go through an azcore pipeline, which supplies bearer tokens,
// telemetry and logging. Queries are retried by the pipeline on transient
// failures; management commands are not, since a retried append could
// ingest the same rows twice.
package kusto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/google/uuid"
)

const (
	moduleName    = "osversion-ingest/kusto"
	moduleVersion = "v1.0.0"

	queryPath = "/v1/rest/query"
	mgmtPath  = "/v1/rest/mgmt"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	azcore.ClientOptions

	// MaxRetries bounds pipeline retries of read queries (default: 3).
	MaxRetries int
}

// Client talks to one Kusto cluster.
type Client struct {
	endpoint string
	query    runtime.Pipeline
	mgmt     runtime.Pipeline
}

// NewClient creates a client for the cluster at endpoint, authenticating
// with cred. Tokens are requested for the "<endpoint>/.default" scope.
func NewClient(endpoint string, cred azcore.TokenCredential, opts *ClientOptions) (*Client, error) {
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("kusto endpoint %q must use https", endpoint)
	}
	if cred == nil {
		return nil, errors.New("kusto credential is required")
	}
	if opts == nil {
		opts = &ClientOptions{}
	}

	scope := endpoint + "/.default"
	plOpts := runtime.PipelineOptions{
		PerRetry: []policy.Policy{runtime.NewBearerTokenPolicy(cred, []string{scope}, nil)},
	}

	queryOpts := opts.ClientOptions
	if opts.MaxRetries > 0 {
		queryOpts.Retry.MaxRetries = int32(opts.MaxRetries)
	}

	mgmtOpts := opts.ClientOptions
	mgmtOpts.Retry.MaxRetries = -1

	return &Client{
		endpoint: endpoint,
		query:    runtime.NewPipeline(moduleName, moduleVersion, plOpts, &queryOpts),
		mgmt:     runtime.NewPipeline(moduleName, moduleVersion, plOpts, &mgmtOpts),
	}, nil
}

// Endpoint returns the cluster URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Query runs a read query against database.
func (c *Client) Query(ctx context.Context, database, query string) (*Dataset, error) {
	return c.do(ctx, c.query, queryPath, database, query)
}

// Mgmt runs a management (control) command against database.
func (c *Client) Mgmt(ctx context.Context, database, command string) (*Dataset, error) {
	return c.do(ctx, c.mgmt, mgmtPath, database, command)
}

type requestBody struct {
	DB  string `json:"db"`
	CSL string `json:"csl"`
}

func (c *Client) do(ctx context.Context, pl runtime.Pipeline, path, database, csl string) (*Dataset, error) {
	req, err := runtime.NewRequest(ctx, http.MethodPost, c.endpoint+path)
	if err != nil {
		return nil, err
	}
	req.Raw().Header.Set("Accept", "application/json")
	req.Raw().Header.Set("x-ms-client-request-id", "OSVersionIngest;"+uuid.New().String())

	if err := runtime.MarshalAsJSON(req, requestBody{DB: database, CSL: csl}); err != nil {
		return nil, err
	}

	resp, err := pl.Do(req)
	if err != nil {
		return nil, err
	}
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return nil, runtime.NewResponseError(resp)
	}

	var ds Dataset
	if err := runtime.UnmarshalAsJSON(resp, &ds); err != nil {
		return nil, fmt.Errorf("decode kusto response: %w", err)
	}
	return &ds, nil
}
