package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"callsense/internal/disposition"
)

var transcriptColumnHints = []string{"transcript", "text", "conversation"}

// uploadColumns is the fixed output layout; error rows leave the result
// columns empty.
var uploadColumns = []string{
	"disposition", "payment_disposition", "reason_for_not_paying",
	"ptp_amount", "ptp_date", "remarks", "confidence_score", "error",
	"_original_transcript",
}

type table struct {
	columns []string
	rows    []map[string]string
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody())
	if err := r.ParseMultipartForm(h.maxBody()); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.FormValue("output_format")))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		writeDetail(w, http.StatusBadRequest, "Unsupported output format")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	in, err := parseUpload(header.Filename, body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Failed to parse uploaded file: "+err.Error())
		return
	}
	col, ok := transcriptColumn(in.columns)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "No transcript/text column found in uploaded file.")
		return
	}

	ctx := r.Context()
	out := make([]map[string]string, 0, len(in.rows))
	for _, row := range in.rows {
		if ctx.Err() != nil {
			return
		}
		transcript := row[col]
		h.Metrics.RecordRequest(ctx, "upload")
		var flat map[string]string
		if strings.TrimSpace(transcript) == "" {
			flat = map[string]string{"error": msgEmptyTranscript}
		} else if res, err := h.predict(ctx, "upload", "", transcript, ""); err != nil {
			flat = map[string]string{"error": err.Error()}
		} else {
			flat = flatten(res)
		}
		flat["_original_transcript"] = transcript
		out = append(out, flat)
	}
	h.Logger.Info("upload processed", zap.String("file", header.Filename), zap.Int("rows", len(out)))

	var buf bytes.Buffer
	mediaType := "text/csv"
	if format == "json" {
		mediaType = "application/json"
		err = writeJSONRows(&buf, out)
	} else {
		err = writeCSVRows(&buf, out)
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := fmt.Sprintf("predictions_%d.%s", time.Now().Unix(), format)
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parseUpload reads CSV or JSON by extension; anything else is tried as CSV.
func parseUpload(filename string, body []byte) (table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return parseJSONTable(body)
	case ".xls", ".xlsx":
		return table{}, errors.New("spreadsheet uploads are not supported, export as csv")
	default:
		return parseCSVTable(body)
	}
}

func parseCSVTable(body []byte) (table, error) {
	rd := csv.NewReader(bytes.NewReader(body))
	rd.FieldsPerRecord = -1
	records, err := rd.ReadAll()
	if err != nil {
		return table{}, err
	}
	if len(records) == 0 {
		return table{}, errors.New("empty file")
	}
	t := table{columns: records[0]}
	for _, rec := range records[1:] {
		row := make(map[string]string, len(t.columns))
		for i, name := range t.columns {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// parseJSONTable reads an array of flat objects. Column order follows the
// first appearance of each key.
func parseJSONTable(body []byte) (table, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return table{}, err
	}
	var t table
	seen := map[string]bool{}
	for i, raw := range raws {
		keys, row, err := decodeOrdered(raw)
		if err != nil {
			return table{}, fmt.Errorf("record %d: %w", i, err)
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				t.columns = append(t.columns, k)
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func decodeOrdered(raw json.RawMessage) ([]string, map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("expected object")
	}
	var keys []string
	row := map[string]string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		row[key] = cellText(v)
	}
	return keys, row, nil
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

func transcriptColumn(columns []string) (string, bool) {
	for _, c := range columns {
		lower := strings.ToLower(c)
		for _, hint := range transcriptColumnHints {
			if strings.Contains(lower, hint) {
				return c, true
			}
		}
	}
	return "", false
}

func flatten(res disposition.Result) map[string]string {
	row := map[string]string{
		"disposition":           res.Disposition,
		"payment_disposition":   res.PaymentDisposition,
		"reason_for_not_paying": res.ReasonForNotPaying,
		"remarks":               res.Remarks,
		"confidence_score":      strconv.FormatFloat(res.ConfidenceScore, 'f', -1, 64),
	}
	if res.PtpDetails.Amount != nil {
		row["ptp_amount"] = *res.PtpDetails.Amount
	}
	if res.PtpDetails.Date != nil {
		row["ptp_date"] = *res.PtpDetails.Date
	}
	return row
}

func writeCSVRows(w io.Writer, rows []map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(uploadColumns); err != nil {
		return err
	}
	rec := make([]string, len(uploadColumns))
	for _, row := range rows {
		for i, c := range uploadColumns {
			rec[i] = row[c]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSONRows(w io.Writer, rows []map[string]string) error {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(uploadColumns))
		for _, c := range uploadColumns {
			v, ok := row[c]
			if !ok || (v == "" && c != "_original_transcript" && c != "remarks") {
				rec[c] = nil
				continue
			}
			if c == "confidence_score" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					rec[c] = f
					continue
				}
			}
			rec[c] = v
		}
		out = append(out, rec)
	}
	return json.NewEncoder(w).Encode(out)
}
