package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/dataprep"
	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/source"
)

// PredictRequest holds raw observations keyed by column name.
type PredictRequest struct {
	Records []map[string]any `json:"records"`
}

// Prediction is the outcome for one submitted record. Records removed by the
// eligibility filters carry no probability.
type Prediction struct {
	Index       int      `json:"index"`
	Account     string   `json:"account,omitempty"`
	ClientCode  string   `json:"client_code,omitempty"`
	Eligible    bool     `json:"eligible"`
	Probability *float64 `json:"churn_probability,omitempty"`
	Churn       *bool    `json:"churn,omitempty"`
}

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	ModelURI     string       `json:"model_uri"`
	ModelVersion int          `json:"model_version"`
	Predictions  []Prediction `json:"predictions"`
}

// ModelResponse describes the model being served.
type ModelResponse struct {
	URI      string   `json:"uri"`
	Version  int      `json:"version"`
	Features []string `json:"features"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.current(); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrorCodeNoModel, err.Error(), r.Header.Get(RequestIDHeader))
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	scorer, err := s.current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrorCodeNoModel, err.Error(), r.Header.Get(RequestIDHeader))
		return
	}
	writeJSON(w, http.StatusOK, ModelResponse{URI: scorer.URI(), Version: scorer.Version(), Features: scorer.Features()})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	scorer, err := s.Reload(r.Context())
	if err != nil {
		s.logger.Error("model reload failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, ErrorCodeNoModel, err.Error(), r.Header.Get(RequestIDHeader))
		return
	}
	writeJSON(w, http.StatusOK, ModelResponse{URI: scorer.URI(), Version: scorer.Version(), Features: scorer.Features()})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	scorer, err := s.current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrorCodeNoModel, err.Error(), requestID)
		return
	}

	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	var req PredictRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeTooLarge,
				fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit), requestID)
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid JSON body: "+err.Error(), requestID)
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "records must not be empty", requestID)
		return
	}
	if s.cfg.MaxRecords > 0 && len(req.Records) > s.cfg.MaxRecords {
		writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeTooLarge,
			fmt.Sprintf("at most %d records per request", s.cfg.MaxRecords), requestID)
		return
	}

	raw, err := recordsFrame(req.Records)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRecords, err.Error(), requestID)
		return
	}
	scores, err := scorer.Score(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrorCodeInvalidRecords, err.Error(), requestID)
		return
	}

	preds := make([]Prediction, raw.Len())
	accounts := optionalStrings(raw, dataprep.ColAccount)
	codes := optionalStrings(raw, dataprep.ColClientCode)
	for i := range preds {
		preds[i] = Prediction{Index: i, Account: accounts[i], ClientCode: codes[i]}
	}
	for k, row := range scores.Dataset.Rows {
		p, churn := scores.Proba[k], scores.Labels[k] == 1
		preds[row].Eligible = true
		preds[row].Probability = &p
		preds[row].Churn = &churn
	}
	churners := scores.Churners()
	s.metrics.RecordPredictions(churners, scores.Dataset.Len()-churners, scores.Ineligible())

	writeJSON(w, http.StatusOK, PredictResponse{
		ModelURI:     scorer.URI(),
		ModelVersion: scorer.Version(),
		Predictions:  preds,
	})
}

// recordsFrame lays JSON records out as a table. Columns are the union of the
// record keys; absent keys and nulls are missing values.
func recordsFrame(records []map[string]any) (*frame.Frame, error) {
	seen := map[string]struct{}{}
	var header []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(header))
		for j, k := range header {
			v, err := cell(rec[k])
			if err != nil {
				return nil, fmt.Errorf("record %d field %s: %w", i, k, err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return frame.FromRecords(header, rows, frame.WithStringColumns(source.IdentifierColumns...))
}

func cell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "1", nil
		}
		return "0", nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	}
	return "", errors.New("nested values are not supported")
}

func optionalStrings(f *frame.Frame, name string) []string {
	vals, err := f.Strings(name)
	if err != nil {
		return make([]string, f.Len())
	}
	return vals
}
