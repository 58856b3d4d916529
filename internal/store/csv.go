// File: internal/store/csv.go
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// ImportCSV reads username,password rows and upserts them as waiting
// accounts. A header row containing "username" is skipped. Returns the
// number of accounts imported.
func ImportCSV(ctx context.Context, s Store, r io.Reader, logger *zap.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	imported := 0
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("failed to read csv line %d: %w", line+1, err)
		}
		line++

		if len(record) < 2 {
			logger.Warn("Skipping malformed csv row.", zap.Int("line", line))
			continue
		}

		username := strings.TrimSpace(record[0])
		password := strings.TrimSpace(record[1])
		if line == 1 && strings.EqualFold(username, "username") {
			continue
		}
		if username == "" || password == "" {
			logger.Warn("Skipping csv row with empty credentials.", zap.Int("line", line))
			continue
		}

		if err := s.CreateAccount(ctx, username, password); err != nil {
			return imported, fmt.Errorf("failed to import account on line %d: %w", line, err)
		}
		imported++
	}

	logger.Info("CSV import finished.", zap.Int("imported", imported))
	return imported, nil
}
