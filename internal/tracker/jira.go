package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestTimeout = 15 * time.Second

// Jira is a thin REST v2 client covering the two calls the bot makes.
type Jira struct {
	baseURL    string
	username   string
	apiToken   string
	httpClient *http.Client
}

func NewJira(baseURL, username, apiToken string, httpClient *http.Client) *Jira {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Jira{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username:   username,
		apiToken:   apiToken,
		httpClient: httpClient,
	}
}

type searchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
		} `json:"fields"`
	} `json:"issues"`
}

func (j *Jira) SearchInProgress(ctx context.Context, project, assignee string) ([]Ticket, error) {
	jql := fmt.Sprintf(`project = %q AND assignee = %q AND status = "In Progress" ORDER BY key`, project, assignee)
	endpoint := j.baseURL + "/rest/api/2/search?" + url.Values{
		"jql":    {jql},
		"fields": {"summary"},
	}.Encode()

	var resp searchResponse
	if err := j.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("search in-progress issues: %w", err)
	}

	tickets := make([]Ticket, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		tickets = append(tickets, Ticket{Key: issue.Key, Title: issue.Fields.Summary})
	}
	return tickets, nil
}

type transitionsResponse struct {
	Transitions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"transitions"`
}

func (j *Jira) Transition(ctx context.Context, ticketKey, transitionName string) error {
	endpoint := j.baseURL + "/rest/api/2/issue/" + url.PathEscape(ticketKey) + "/transitions"

	var listing transitionsResponse
	if err := j.do(ctx, http.MethodGet, endpoint, nil, &listing); err != nil {
		return fmt.Errorf("list transitions for %s: %w", ticketKey, err)
	}

	id := ""
	for _, t := range listing.Transitions {
		if strings.EqualFold(strings.TrimSpace(t.Name), strings.TrimSpace(transitionName)) {
			id = t.ID
			break
		}
	}
	if id == "" {
		return fmt.Errorf("issue %s transition %q: %w", ticketKey, transitionName, ErrNoTransition)
	}

	body := map[string]any{"transition": map[string]string{"id": id}}
	if err := j.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("apply transition %q to %s: %w", transitionName, ticketKey, err)
	}
	return nil
}

func (j *Jira) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(j.username, j.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return fmt.Errorf("tracker returned %s", resp.Status)
		}
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("tracker returned %s: %s", resp.Status, msg)
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
