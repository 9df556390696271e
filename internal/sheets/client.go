package sheets

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

	"github.com/ignite/campaign-sheet-sync/internal/pkg/httpretry"
)

// Grid is the worksheet's allocated size, which can be larger than the
// occupied range.
type Grid struct {
	SheetID int64
	Title   string
	Rows    int
	Columns int
}

// Dimension names a grid axis for AppendDimension.
type Dimension string

const (
	Rows    Dimension = "ROWS"
	Columns Dimension = "COLUMNS"
)

// Store is the remote worksheet as the appender sees it.
type Store interface {
	// RowCount returns the number of occupied rows, trailing empty rows excluded.
	RowCount(ctx context.Context) (int, error)
	// Grid returns the allocated grid of the target worksheet.
	Grid(ctx context.Context) (*Grid, error)
	// AppendDimension adds length empty rows or columns at the end of the grid.
	AppendDimension(ctx context.Context, sheetID int64, dim Dimension, length int) error
	// WriteRows writes rows starting at the given 1-based row, column A.
	WriteRows(ctx context.Context, startRow int, rows [][]interface{}) error
}

// Client is a Sheets API v4 REST client bound to one worksheet.
type Client struct {
	http             httpretry.HTTPDoer
	baseURL          string
	spreadsheetID    string
	worksheet        string
	valueInputOption string
}

// ClientConfig identifies the worksheet a Client writes to.
type ClientConfig struct {
	BaseURL          string
	SpreadsheetID    string
	Worksheet        string
	ValueInputOption string
	MaxRetries       int
	// RetryBackoff overrides the base retry delay; zero keeps the default.
	RetryBackoff time.Duration
}

// NewClient wraps an authorized HTTP client. The doer is expected to add
// the bearer token; retries are layered on here.
func NewClient(doer httpretry.HTTPDoer, cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sheets.googleapis.com"
	}
	if cfg.ValueInputOption == "" {
		cfg.ValueInputOption = "USER_ENTERED"
	}
	retry := httpretry.NewRetryClient(doer, cfg.MaxRetries)
	if cfg.RetryBackoff > 0 {
		retry.WithBackoff(cfg.RetryBackoff, 20*cfg.RetryBackoff)
	}
	return &Client{
		http:             retry,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		spreadsheetID:    cfg.SpreadsheetID,
		worksheet:        cfg.Worksheet,
		valueInputOption: cfg.ValueInputOption,
	}
}

// SpreadsheetID returns the target spreadsheet.
func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

// Worksheet returns the target worksheet title.
func (c *Client) Worksheet() string { return c.worksheet }

// QuoteSheet renders a worksheet title for A1 notation.
func QuoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// CellRange returns the A1 range anchoring a write at the given row.
func CellRange(title string, row int) string {
	return fmt.Sprintf("%s!A%d", QuoteSheet(title), row)
}

type valueRange struct {
	Range          string          `json:"range,omitempty"`
	MajorDimension string          `json:"majorDimension,omitempty"`
	Values         [][]interface{} `json:"values,omitempty"`
}

func (c *Client) RowCount(ctx context.Context) (int, error) {
	q := url.Values{"majorDimension": {"ROWS"}}
	var vr valueRange
	if err := c.do(ctx, http.MethodGet, c.valuesURL(QuoteSheet(c.worksheet), q), nil, &vr); err != nil {
		return 0, fmt.Errorf("read row count: %w", err)
	}
	return len(vr.Values), nil
}

type spreadsheetMeta struct {
	Sheets []struct {
		Properties struct {
			SheetID        int64  `json:"sheetId"`
			Title          string `json:"title"`
			GridProperties struct {
				RowCount    int `json:"rowCount"`
				ColumnCount int `json:"columnCount"`
			} `json:"gridProperties"`
		} `json:"properties"`
	} `json:"sheets"`
}

func (c *Client) Grid(ctx context.Context) (*Grid, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s?%s", c.baseURL, url.PathEscape(c.spreadsheetID),
		url.Values{"fields": {"sheets.properties"}}.Encode())
	var meta spreadsheetMeta
	if err := c.do(ctx, http.MethodGet, u, nil, &meta); err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}
	for _, s := range meta.Sheets {
		p := s.Properties
		if p.Title == c.worksheet {
			return &Grid{
				SheetID: p.SheetID,
				Title:   p.Title,
				Rows:    p.GridProperties.RowCount,
				Columns: p.GridProperties.ColumnCount,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrWorksheetNotFound, c.worksheet)
}

func (c *Client) AppendDimension(ctx context.Context, sheetID int64, dim Dimension, length int) error {
	if length <= 0 {
		return nil
	}
	body := map[string]interface{}{
		"requests": []interface{}{
			map[string]interface{}{
				"appendDimension": map[string]interface{}{
					"sheetId":   sheetID,
					"dimension": dim,
					"length":    length,
				},
			},
		},
	}
	u := fmt.Sprintf("%s/v4/spreadsheets/%s:batchUpdate", c.baseURL, url.PathEscape(c.spreadsheetID))
	if err := c.do(ctx, http.MethodPost, u, body, nil); err != nil {
		return fmt.Errorf("append %d %s: %w", length, strings.ToLower(string(dim)), err)
	}
	return nil
}

type updateResponse struct {
	UpdatedRange string `json:"updatedRange"`
	UpdatedRows  int    `json:"updatedRows"`
}

func (c *Client) WriteRows(ctx context.Context, startRow int, rows [][]interface{}) error {
	rng := CellRange(c.worksheet, startRow)
	q := url.Values{"valueInputOption": {c.valueInputOption}}
	body := valueRange{Range: rng, MajorDimension: "ROWS", Values: rows}

	var resp updateResponse
	if err := c.do(ctx, http.MethodPut, c.valuesURL(rng, q), body, &resp); err != nil {
		return fmt.Errorf("write %d rows at %s: %w", len(rows), rng, err)
	}
	if resp.UpdatedRows != 0 && resp.UpdatedRows != len(rows) {
		return fmt.Errorf("write at %s: updated %d rows, sent %d", rng, resp.UpdatedRows, len(rows))
	}
	return nil
}

func (c *Client) valuesURL(rng string, q url.Values) string {
	return fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?%s",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(rng), q.Encode())
}

func (c *Client) do(ctx context.Context, method, u string, in, out interface{}) error {
	var body io.Reader
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(code int, data []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: code}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
	} else {
		apiErr.Message = http.StatusText(code)
	}
	return apiErr
}
