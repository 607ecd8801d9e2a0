// Package lims talks to the laboratory information management system over
// its REST/XML API.
package lims

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
)

// StatusError is a non-success LIMS response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("LIMS returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("LIMS returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// Client is a LIMS API client.
type Client struct {
	baseURL string
	client  *resty.Client
	logger  *logrus.Logger
}

// NewClient creates a LIMS client from configuration
func NewClient(config domain.LimsConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/xml")
	if config.Username != "" {
		client.SetBasicAuth(config.Username, config.Password)
	}

	return &Client{baseURL: baseURL, client: client, logger: logger}
}

// URI returns the absolute URI of an API resource.
func (c *Client) URI(parts ...string) string {
	return c.baseURL + "/" + strings.Join(parts, "/")
}

// GetSamples lists samples matching the query, following pagination.
func (c *Client) GetSamples(ctx context.Context, query domain.LimsSampleQuery) ([]domain.LimsSample, error) {
	req := c.client.R().SetContext(ctx)
	if query.Name != "" {
		req.SetQueryParam("name", query.Name)
	}
	for name, value := range query.UDFs {
		req.SetQueryParam("udf."+name, value)
	}

	var samples []domain.LimsSample
	next := "/samples"
	for next != "" {
		var list sampleList
		if err := c.do(req, http.MethodGet, next, &list); err != nil {
			return nil, fmt.Errorf("listing samples: %w", err)
		}
		for _, link := range list.Samples {
			samples = append(samples, domain.LimsSample{ID: link.LimsID, URI: link.URI, Name: link.Name})
		}

		next = ""
		if list.NextPage != nil {
			// next-page links already carry the query
			next = list.NextPage.URI
			req = c.client.R().SetContext(ctx)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"name":    query.Name,
		"udfs":    query.UDFs,
		"matches": len(samples),
	}).Debug("Queried LIMS samples")

	return samples, nil
}

// CreateProject creates a project owned by the researcher.
func (c *Client) CreateProject(ctx context.Context, researcherID, name string) (*domain.LimsProject, error) {
	body := projectRequest{
		PrjNS:      nsProject,
		UdfNS:      nsUDF,
		Name:       name,
		Researcher: &uriRef{URI: c.URI("researchers", researcherID)},
	}

	var created projectResponse
	if err := c.send(ctx, http.MethodPost, "/projects", body, &created); err != nil {
		return nil, fmt.Errorf("creating project %q: %w", name, err)
	}
	return toProject(created), nil
}

// PutProject stores the project fields and user-defined fields.
func (c *Client) PutProject(ctx context.Context, project *domain.LimsProject) error {
	if project.URI == "" {
		return fmt.Errorf("updating project %q: missing uri", project.Name)
	}
	body := projectRequest{
		PrjNS:  nsProject,
		UdfNS:  nsUDF,
		URI:    project.URI,
		LimsID: project.ID,
		Name:   project.Name,
		Fields: udfsOut(project.UDFs),
	}
	if project.ResearcherURI != "" {
		body.Researcher = &uriRef{URI: project.ResearcherURI}
	}

	var updated projectResponse
	if err := c.send(ctx, http.MethodPut, project.URI, body, &updated); err != nil {
		return fmt.Errorf("updating project %q: %w", project.Name, err)
	}
	*project = *toProject(updated)
	return nil
}

// CreateContainer creates a container of the given container type.
func (c *Client) CreateContainer(ctx context.Context, name, containerTypeID string) (*domain.LimsContainer, error) {
	body := containerRequest{
		ConNS: nsContainer,
		Name:  name,
		Type:  uriRef{URI: c.URI("containertypes", containerTypeID)},
	}

	var created containerResponse
	if err := c.send(ctx, http.MethodPost, "/containers", body, &created); err != nil {
		return nil, fmt.Errorf("creating container %q: %w", name, err)
	}
	return &domain.LimsContainer{
		ID:      created.LimsID,
		URI:     created.URI,
		Name:    created.Name,
		TypeURI: created.Type.URI,
	}, nil
}

// CreateSample creates a sample in a project, placed in a container well.
func (c *Client) CreateSample(ctx context.Context, sample *domain.LimsSample) (*domain.LimsSample, error) {
	position := sample.Position
	if position == "" {
		position = domain.DefaultWellPosition
	}
	body := sampleCreation{
		SmpNS:   nsSample,
		UdfNS:   nsUDF,
		Name:    sample.Name,
		Project: uriRef{URI: sample.ProjectURI},
		Location: location{
			Container: uriRef{URI: sample.ContainerURI},
			Value:     position,
		},
		Fields: udfsOut(sample.UDFs),
	}

	var created sampleResponse
	if err := c.send(ctx, http.MethodPost, "/samples", body, &created); err != nil {
		return nil, fmt.Errorf("creating sample %q: %w", sample.Name, err)
	}
	return &domain.LimsSample{
		ID:           created.LimsID,
		URI:          created.URI,
		Name:         created.Name,
		ProjectURI:   created.Project.URI,
		ContainerURI: created.Location.Container.URI,
		Position:     created.Location.Value,
		UDFs:         udfsIn(created.Fields),
	}, nil
}

func (c *Client) send(ctx context.Context, method, url string, body, out interface{}) error {
	payload, err := xml.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/xml").
		SetBody(append([]byte(xml.Header), payload...))
	return c.do(req, method, url, out)
}

func (c *Client) do(req *resty.Request, method, url string, out interface{}) error {
	res, err := req.Execute(method, url)
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return statusError(res)
	}
	if err := xml.Unmarshal(res.Body(), out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func statusError(res *resty.Response) error {
	serr := &StatusError{StatusCode: res.StatusCode()}
	var exc exception
	if err := xml.Unmarshal(res.Body(), &exc); err == nil {
		serr.Message = strings.TrimSpace(exc.Message)
	}
	return serr
}

func toProject(res projectResponse) *domain.LimsProject {
	return &domain.LimsProject{
		ID:            res.LimsID,
		URI:           res.URI,
		Name:          res.Name,
		ResearcherURI: res.Researcher.URI,
		UDFs:          udfsIn(res.Fields),
	}
}

// IsStatus reports whether err is a LIMS response with the given status code.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == code
}

var _ domain.LimsClient = (*Client)(nil)
