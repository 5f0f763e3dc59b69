package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"tgstat-bot/models"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const maxSheetNameLength = 100

var header = []interface{}{"Channel", "Channel URL", "Post URL", "Published", "Views", "Reposts"}

// Writer exports search results to Google Sheets
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
	log           *zap.Logger
}

// NewWriter creates a new Google Sheets writer. Credentials are read from
// credentialsPath when set, otherwise credentialsJSON is used as is.
func NewWriter(ctx context.Context, spreadsheetID, credentialsPath, credentialsJSON string, log *zap.Logger) (*Writer, error) {
	creds, err := readCredentials(credentialsPath, credentialsJSON)
	if err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		service:       service,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// readCredentials loads and validates a service account JSON key
func readCredentials(path, raw string) ([]byte, error) {
	var credsJSON []byte

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credsJSON = data
	} else {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, fmt.Errorf("credentials not found: no file given and GOOGLE_SHEETS_CREDENTIALS is empty")
		}
		credsJSON = []byte(raw)
	}

	var creds map[string]interface{}
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON: %w", err)
	}

	if creds["type"] != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account JSON file (type: service_account), got type: %v", creds["type"])
	}

	return credsJSON, nil
}

// CreateSheetAndWritePosts creates a new sheet at the beginning of the
// spreadsheet and writes one row per post under a metadata row and a header.
// Returns the sheet name and sheet ID (gid) that was created.
func (w *Writer) CreateSheetAndWritePosts(ctx context.Context, sheetName string, posts []models.PostData, query string) (string, int64, error) {
	sheetName = sanitizeSheetName(sheetName)

	batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: sheetName,
						Index: 0,
					},
				},
			},
		},
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, batchUpdateRequest).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	var sheetID int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	w.log.Debug("Created sheet", zap.String("sheet", sheetName), zap.Int64("sheet_id", sheetID))

	valueRange := &sheets.ValueRange{
		Values: buildRows(posts, query, time.Now()),
	}

	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, fmt.Sprintf("'%s'!A1", sheetName), valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to write to sheet: %w", err)
	}

	w.log.Info("Exported posts to Google Sheets",
		zap.String("sheet", sheetName),
		zap.Int("posts", len(posts)),
	)
	return sheetName, sheetID, nil
}

// buildRows lays out the sheet: metadata, header, then one row per post
func buildRows(posts []models.PostData, query string, at time.Time) [][]interface{} {
	values := make([][]interface{}, 0, len(posts)+2)
	values = append(values, []interface{}{"Query", query, "Exported", at.UTC().Format(time.RFC3339)})
	values = append(values, header)

	for _, post := range posts {
		values = append(values, []interface{}{
			post.SourceTitle,
			post.SourceURL,
			post.PostURL,
			post.PublicationDate,
			post.ViewsCount,
			post.RepostsCount,
		})
	}

	return values
}

// sanitizeSheetName removes characters Google Sheets rejects in sheet names
// and caps the length
func sanitizeSheetName(name string) string {
	invalidChars := []string{"/", "\\", "?", "*", "[", "]", "'", ":"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)

	if runes := []rune(result); len(runes) > maxSheetNameLength {
		result = strings.TrimSpace(string(runes[:maxSheetNameLength]))
	}

	if result == "" {
		result = "Sheet1"
	}
	return result
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
// like https://docs.google.com/spreadsheets/d/SPREADSHEET_ID/edit?usp=sharing
func ExtractSpreadsheetID(url string) string {
	parts := strings.Split(url, "/d/")
	if len(parts) < 2 {
		return ""
	}

	idPart := parts[1]
	if idx := strings.Index(idPart, "/"); idx != -1 {
		idPart = idPart[:idx]
	}
	if idx := strings.Index(idPart, "?"); idx != -1 {
		idPart = idPart[:idx]
	}

	return strings.TrimSpace(idPart)
}

// SheetName names the export sheet for one search
func SheetName(query string, at time.Time) string {
	return sanitizeSheetName(fmt.Sprintf("%s %s", at.UTC().Format("2006-01-02 15:04:05"), query))
}
