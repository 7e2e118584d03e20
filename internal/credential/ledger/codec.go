// Package ledger talks to the authoritative certificate ledger.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"certledger/internal/credential/models"
)

// argCount is the length of the ordered argument list every write carries:
// certId, nim, name, major, program, cid, hash, status, issuedAt,
// supersededBy, revocationReason.
const argCount = 11

// EncodeArgs flattens a record into the chaincode argument order.
func EncodeArgs(r models.CertificateRecord) []string {
	return []string{
		r.CertID.String(),
		r.SubjectID,
		r.SubjectName,
		r.Major,
		r.Program,
		r.ContentID,
		r.ContentHash,
		r.Status.String(),
		formatTime(r.IssuedAt),
		r.SupersededBy.String(),
		r.RevocationReason,
	}
}

// DecodeArgs is the inverse of EncodeArgs.
func DecodeArgs(args []string) (models.CertificateRecord, error) {
	if len(args) != argCount {
		return models.CertificateRecord{}, fmt.Errorf("expected %d ledger arguments, got %d", argCount, len(args))
	}
	status, err := models.ParseStatus(args[7])
	if err != nil {
		return models.CertificateRecord{}, err
	}
	issuedAt, err := parseTime(args[8])
	if err != nil {
		return models.CertificateRecord{}, err
	}
	return models.CertificateRecord{
		CertID:           models.CertID(args[0]),
		SubjectID:        args[1],
		SubjectName:      args[2],
		Major:            args[3],
		Program:          args[4],
		ContentID:        args[5],
		ContentHash:      args[6],
		Status:           status,
		IssuedAt:         issuedAt,
		SupersededBy:     models.CertID(args[9]),
		RevocationReason: args[10],
	}, nil
}

// wireRecord is the JSON shape the chaincode returns from reads. Field names
// follow the deployed contract, including "majority" for the major.
type wireRecord struct {
	CertID           string `json:"certId"`
	NIM              string `json:"nim"`
	Name             string `json:"name"`
	Major            string `json:"majority"`
	Program          string `json:"program"`
	CID              string `json:"cid"`
	Hash             string `json:"hash"`
	Status           string `json:"status"`
	IssuedAt         string `json:"issuedAt"`
	SupersededBy     string `json:"supersededBy,omitempty"`
	RevocationReason string `json:"revocationReason,omitempty"`
}

func (w wireRecord) toModel() (models.CertificateRecord, error) {
	return DecodeArgs([]string{
		w.CertID, w.NIM, w.Name, w.Major, w.Program, w.CID, w.Hash,
		w.Status, w.IssuedAt, w.SupersededBy, w.RevocationReason,
	})
}

// DecodeRecordJSON parses a single ReadCertificate payload.
func DecodeRecordJSON(data []byte) (models.CertificateRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return models.CertificateRecord{}, fmt.Errorf("decode ledger record: %w", err)
	}
	return w.toModel()
}

// DecodeRecordsJSON parses a GetAllCertificates payload. An empty body is an
// empty ledger.
func DecodeRecordsJSON(data []byte) ([]models.CertificateRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ws []wireRecord
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("decode ledger records: %w", err)
	}
	records := make([]models.CertificateRecord, 0, len(ws))
	for _, w := range ws {
		r, err := w.toModel()
		if err != nil {
			return nil, fmt.Errorf("decode ledger record %s: %w", w.CertID, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse issuedAt %q: %w", s, err)
	}
	return t.UTC(), nil
}
