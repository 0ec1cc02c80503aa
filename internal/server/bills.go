package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/pipeline"
)

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.handleBill(w, r, false)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.handleBill(w, r, true)
}

func (s *Server) handleBill(w http.ResponseWriter, r *http.Request, submit bool) {
	req, err := s.parseBillRequest(w, r)
	if err != nil {
		s.logger.Warn("server.bill.bad_request", "req_id", common.RequestIDFromContext(r.Context()), "error", err)
		s.writeError(w, r, err, nil)
		return
	}
	req.Submit = submit

	out, err := s.deps.Processor.Process(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, out)
		return
	}

	status := http.StatusOK
	if out.Status == constants.RunStatusRejected {
		// accounting system refused the bill
		status = http.StatusBadGateway
	}
	writeJSON(w, status, out)
}

// parseBillRequest reads the multipart upload: a "file" part holding the
// CFDI XML and optional vendor_id, account_id, mode and txn_date fields.
func (s *Server) parseBillRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pipeline.Request{}, common.InvalidInputErrorf("upload exceeds %d bytes", s.cfg.MaxUploadBytes)
		}
		return pipeline.Request{}, common.InvalidInputErrorf("parse form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return pipeline.Request{}, common.InvalidInputErrorf("missing 'file' part")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return pipeline.Request{}, common.InvalidInputErrorf("read upload: %v", err)
	}
	if !looksLikeXML(data) {
		return pipeline.Request{}, common.InvalidInputErrorf("%s does not look like an XML document", header.Filename)
	}

	modeRaw := strings.TrimSpace(r.FormValue("mode"))
	dateRaw := strings.TrimSpace(r.FormValue("txn_date"))
	v := common.NewValidator().
		Field("vendor_id", r.FormValue("vendor_id"), common.MaxLength(64)).
		Field("account_id", r.FormValue("account_id"), common.MaxLength(64)).
		Field("txn_date", dateRaw, common.Date)
	if modeRaw != "" {
		if _, ok := constants.ParseMode(modeRaw); !ok {
			v.Field("mode", modeRaw, common.OneOf("item", "account"))
		}
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return pipeline.Request{}, err
	}

	req := pipeline.Request{
		Document:   data,
		SourcePath: "upload:" + header.Filename,
		VendorID:   strings.TrimSpace(r.FormValue("vendor_id")),
		AccountID:  strings.TrimSpace(r.FormValue("account_id")),
	}
	if modeRaw != "" {
		req.Mode, _ = constants.ParseMode(modeRaw)
	}
	if dateRaw != "" {
		d, err := time.Parse(time.DateOnly, dateRaw)
		if err != nil {
			return pipeline.Request{}, common.InvalidInputErrorf("txn_date: %v", err)
		}
		req.TxnDate = d
	}
	return req, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// looksLikeXML checks that the first non-space byte opens a tag. The
// content-type sniffer only recognizes documents with an XML declaration.
func looksLikeXML(data []byte) bool {
	data = bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if len(data) == 0 || data[0] != '<' {
		return false
	}
	ct := http.DetectContentType(data)
	return strings.HasPrefix(ct, "text/xml") || strings.HasPrefix(ct, "text/plain") || strings.HasPrefix(ct, "text/html")
}
