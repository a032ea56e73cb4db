// Package ring queries the directory service that lists the nodes of
// the ring.
package ring

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DefaultAPI is the base URL of the directory service.
	DefaultAPI = "https://ring.nlnog.net/api/1.0"
	// DefaultDomain is the domain suffix of all ring nodes.
	DefaultDomain = "ring.nlnog.net"
)

// Node is a node as listed by the directory service.
type Node struct {
	// Hostname is the short name of the node without the ring domain.
	Hostname    string `json:"hostname"`
	CountryCode string `json:"countrycode"`
}

type nodesResponse struct {
	Info struct {
		ResultCount int `json:"resultcount"`
	} `json:"info"`
	Results struct {
		Nodes []Node `json:"nodes"`
	} `json:"results"`
}

// DirectoryError is returned if the directory service could not be
// queried or returned a malformed response.
type DirectoryError struct {
	URL string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.URL, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// Client is a client for the directory service.
type Client struct {
	Logger *zerolog.Logger
	API    string
	Domain string

	httpClient *http.Client
}

// NewClient creates a new directory client.
func NewClient(options ...Option) (*Client, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			opts.Logger.Warn().Msg("Skipping TLS certificate verification is insecure!")
			opts.Logger.Warn().Msg("This allows for person-in-the-middle attacks!")
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		Logger:     opts.Logger,
		API:        strings.TrimSuffix(opts.API, "/"),
		Domain:     opts.Domain,
		httpClient: httpClient,
	}, nil
}

// Nodes returns all active nodes, optionally limited to a country.
// Hostnames are returned without the ring domain.
func (c *Client) Nodes(ctx context.Context, country string) ([]Node, error) {
	endpoint := c.API + "/nodes/active"
	if country != "" {
		endpoint += "/country/" + url.PathEscape(country)
	}

	var resp nodesResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(resp.Results.Nodes))
	for _, node := range resp.Results.Nodes {
		node.Hostname = c.ShortName(node.Hostname)
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// ActiveNodes returns the names of all active nodes, optionally
// limited to a country.
func (c *Client) ActiveNodes(ctx context.Context, country string) ([]string, error) {
	nodes, err := c.Nodes(ctx, country)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		names = append(names, node.Hostname)
	}

	return names, nil
}

// CountryCode returns the country code of a node. The boolean is false
// if the directory service does not know the node.
func (c *Client) CountryCode(ctx context.Context, node string) (string, bool, error) {
	endpoint := c.API + "/nodes/hostname/" + url.PathEscape(c.FQDN(node))

	var resp nodesResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return "", false, err
	}

	if resp.Info.ResultCount == 0 {
		return "", false, nil
	}
	if len(resp.Results.Nodes) == 0 {
		return "", false, &DirectoryError{URL: endpoint, Err: fmt.Errorf("result count is %d but no nodes were returned", resp.Info.ResultCount)}
	}

	return resp.Results.Nodes[0].CountryCode, true, nil
}

// ShortName strips the ring domain from a hostname.
func (c *Client) ShortName(hostname string) string {
	return strings.TrimSuffix(hostname, "."+c.Domain)
}

// FQDN appends the ring domain to a short node name.
func (c *Client) FQDN(node string) string {
	if strings.HasSuffix(node, "."+c.Domain) {
		return node
	}
	return node + "." + c.Domain
}

func (c *Client) get(ctx context.Context, endpoint string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &DirectoryError{URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	c.Logger.Debug().Str("url", endpoint).Msg("Querying directory service")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DirectoryError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DirectoryError{URL: endpoint, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &DirectoryError{URL: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}
