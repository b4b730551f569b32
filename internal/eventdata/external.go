package eventdata

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fact-project/eventlist/internal/rawdata"
	"github.com/fact-project/eventlist/pkg/model"
)

// ExternalReader delegates binary-format decoding (fits.gz, fits.fz)
// to an external tool that writes the event interchange CSV to stdout.
type ExternalReader struct {
	// Command is the reader executable; it receives the file path as
	// its single argument.
	Command string
}

// Read runs the external tool on path and decodes its output. Files
// whose run type is neither data nor pedestal yield no events; the
// caller must treat that as "skip", not as an error.
func (r ExternalReader) Read(ctx context.Context, path string) (*RunData, error) {
	if r.Command == "" {
		return nil, fmt.Errorf("no external reader command configured for %s", path)
	}
	if rawdata.IsDrsFile(path) {
		return nil, fmt.Errorf("%s is a DRS calibration file, not an event source", path)
	}
	run, err := rawdata.ParseBasename(path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, r.Command, path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", r.Command, path, err, strings.TrimSpace(stderr.String()))
	}

	data, err := DecodeCSV(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode %s output for %s: %w", r.Command, path, err)
	}
	data.Run = run

	if err := validateRun(run, data.Events); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// ReaderFor picks the reader for a run-file path: the CSV reader for
// ingest files, the external tool for the two binary formats.
func ReaderFor(path, externalCommand string) (Reader, error) {
	if strings.HasSuffix(path, ".csv") {
		return CSVReader{}, nil
	}
	if ext := rawdata.Extension(path); ext != "" {
		return ExternalReader{Command: externalCommand}, nil
	}
	return nil, fmt.Errorf("unknown extension of file %q", path)
}

// Processable reports whether a run type produces event records.
func Processable(rt model.RunType) bool {
	return rt == model.RunTypeData || rt == model.RunTypePedestal
}
