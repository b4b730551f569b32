package eventdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fact-project/eventlist/internal/rawdata"
	"github.com/fact-project/eventlist/pkg/model"
)

// csvHeader is the column set of the event CSV interchange format,
// shared with the external binary readers and the csv-ingest path.
var csvHeader = []string{"night", "runId", "eventNr", "UTC", "UTCus", "eventType", "runType"}

// CSVReader parses event CSV files named after their run
// (YYYYMMDD_RRR*.csv).
type CSVReader struct{}

// Read parses the CSV file at path.
func (CSVReader) Read(ctx context.Context, path string) (*RunData, error) {
	run, err := rawdata.ParseBasename(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := DecodeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	data.Run = run

	if err := validateRun(run, data.Events); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// DecodeCSV reads the event interchange CSV from r.
func DecodeCSV(r io.Reader) (*RunData, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, want := range csvHeader {
		if header[i] != want {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, header[i], want)
		}
	}

	data := &RunData{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		ev, err := parseEventRow(row)
		if err != nil {
			return nil, err
		}
		data.Events = append(data.Events, ev)
		data.RunType = ev.RunType
	}
	return data, nil
}

func parseEventRow(row []string) (model.Event, error) {
	ints := make([]int64, len(row))
	for i, field := range row {
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return model.Event{}, fmt.Errorf("column %s: %w", csvHeader[i], err)
		}
		ints[i] = v
	}
	return model.Event{
		Night:      int(ints[0]),
		RunID:      int(ints[1]),
		EventNr:    int(ints[2]),
		UTCSeconds: ints[3],
		UTCMicros:  ints[4],
		EventType:  int(ints[5]),
		RunType:    model.RunType(ints[6]),
	}, nil
}

// EncodeCSV writes the event interchange CSV to w.
func EncodeCSV(w io.Writer, events []model.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{
			strconv.Itoa(ev.Night),
			strconv.Itoa(ev.RunID),
			strconv.Itoa(ev.EventNr),
			strconv.FormatInt(ev.UTCSeconds, 10),
			strconv.FormatInt(ev.UTCMicros, 10),
			strconv.Itoa(ev.EventType),
			strconv.Itoa(int(ev.RunType)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
