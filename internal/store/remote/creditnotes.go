package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

const maxBodyBytes = 16 << 20

// CreditNoteClient reads credit notes from a peer service exposing
// {"creditNotes": [...]}. A non-empty token is sent as a bearer credential.
type CreditNoteClient struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewCreditNoteClient(endpoint, token string, timeout time.Duration) (*CreditNoteClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("credit notes endpoint is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CreditNoteClient{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: timeout},
	}, nil
}

type creditNotesResponse struct {
	CreditNotes []domain.CreditNote `json:"creditNotes"`
}

func (c *CreditNoteClient) GetCreditNotes(ctx context.Context) ([]domain.CreditNote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credit notes request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("credit notes read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credit notes api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed creditNotesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("credit notes decode: %w", err)
	}
	if parsed.CreditNotes == nil {
		return []domain.CreditNote{}, nil
	}
	return parsed.CreditNotes, nil
}
