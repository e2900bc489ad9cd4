package console

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// loadHistory seeds persona memories from a csv of whispers. The first row is
// a header; every other row holds a persona name and a ";" separated list of
// statements to whisper to them.
func (c *Console) loadHistory(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("could not open history file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("could not read history csv: %w", err)
	}

	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 2 {
			return fmt.Errorf("history row %d needs a persona name and whispers", i+1)
		}

		p, err := c.persona(strings.TrimSpace(row[0]))
		if err != nil {
			return err
		}

		for _, whisper := range strings.Split(row[1], ";") {
			whisper = strings.TrimSpace(whisper)
			if whisper == "" {
				continue
			}

			p.Whisper(c.log, whisper)
		}
	}

	return nil
}
