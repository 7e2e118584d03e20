package ledger

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/hash"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
)

// Chaincode read functions.
const (
	fnRead    = "ReadCertificate"
	fnReadAll = "GetAllCertificates"
)

// FabricConfig locates the gateway peer and the client identity.
type FabricConfig struct {
	PeerEndpoint        string
	GatewayPeer         string
	TLSCertPath         string
	CertPath            string
	KeyPath             string
	MSPID               string
	Channel             string
	Chaincode           string
	EvaluateTimeout     time.Duration
	EndorseTimeout      time.Duration
	SubmitTimeout       time.Duration
	CommitStatusTimeout time.Duration
}

// FabricLedger submits and evaluates certificate transactions through a
// Fabric Gateway peer.
type FabricLedger struct {
	conn     *grpc.ClientConn
	gateway  *client.Gateway
	contract *client.Contract
	logger   *slog.Logger
}

// NewFabric dials the gateway peer and binds the certificate contract.
func NewFabric(cfg FabricConfig, logger *slog.Logger) (*FabricLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dialPeer(cfg)
	if err != nil {
		return nil, err
	}

	id, sign, err := loadIdentity(cfg)
	if err != nil {
		conn.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, err
	}

	gw, err := client.Connect(id,
		client.WithSign(sign),
		client.WithHash(hash.SHA256),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(orDefault(cfg.EvaluateTimeout, 5*time.Second)),
		client.WithEndorseTimeout(orDefault(cfg.EndorseTimeout, 15*time.Second)),
		client.WithSubmitTimeout(orDefault(cfg.SubmitTimeout, 5*time.Second)),
		client.WithCommitStatusTimeout(orDefault(cfg.CommitStatusTimeout, time.Minute)),
	)
	if err != nil {
		conn.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("connect fabric gateway: %w", err)
	}

	contract := gw.GetNetwork(cfg.Channel).GetContract(cfg.Chaincode)
	logger.Info("fabric gateway connected",
		"peer", cfg.PeerEndpoint,
		"channel", cfg.Channel,
		"chaincode", cfg.Chaincode,
		"msp_id", cfg.MSPID,
	)
	return &FabricLedger{conn: conn, gateway: gw, contract: contract, logger: logger}, nil
}

func dialPeer(cfg FabricConfig) (*grpc.ClientConn, error) {
	tlsPEM, err := os.ReadFile(cfg.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("read peer tls certificate: %w", err)
	}
	tlsCert, err := identity.CertificateFromPEM(tlsPEM)
	if err != nil {
		return nil, fmt.Errorf("parse peer tls certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(tlsCert)

	conn, err := grpc.NewClient(cfg.PeerEndpoint,
		grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(pool, cfg.GatewayPeer)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial fabric peer %s: %w", cfg.PeerEndpoint, err)
	}
	return conn, nil
}

func loadIdentity(cfg FabricConfig) (*identity.X509Identity, identity.Sign, error) {
	certPEM, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read client certificate: %w", err)
	}
	cert, err := identity.CertificateFromPEM(certPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse client certificate: %w", err)
	}
	id, err := identity.NewX509Identity(cfg.MSPID, cert)
	if err != nil {
		return nil, nil, fmt.Errorf("build x509 identity: %w", err)
	}

	keyPEM, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read client key: %w", err)
	}
	key, err := identity.PrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse client key: %w", err)
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, nil, fmt.Errorf("build signer: %w", err)
	}
	return id, sign, nil
}

// Submit endorses and commits op with the record's ordered argument list.
func (l *FabricLedger) Submit(ctx context.Context, op models.Operation, record models.CertificateRecord) error {
	_, err := l.contract.SubmitWithContext(ctx, string(op), client.WithArguments(EncodeArgs(record)...))
	if err != nil {
		l.logger.WarnContext(ctx, "fabric submit failed",
			"operation", op,
			"cert_id", record.CertID,
			"error", err,
		)
		return fmt.Errorf("submit %s: %w", op, classify(err))
	}
	return nil
}

func (l *FabricLedger) Query(ctx context.Context, certID models.CertID) (models.CertificateRecord, error) {
	data, err := l.contract.EvaluateWithContext(ctx, fnRead, client.WithArguments(certID.String()))
	if err != nil {
		return models.CertificateRecord{}, fmt.Errorf("read %s: %w", certID, classify(err))
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return models.CertificateRecord{}, sentinel.ErrNotFound
	}
	return DecodeRecordJSON(data)
}

func (l *FabricLedger) QueryAll(ctx context.Context) ([]models.CertificateRecord, error) {
	data, err := l.contract.EvaluateWithContext(ctx, fnReadAll)
	if err != nil {
		return nil, fmt.Errorf("read all: %w", classify(err))
	}
	return DecodeRecordsJSON([]byte(strings.TrimSpace(string(data))))
}

// Ping reports whether the peer connection is usable.
func (l *FabricLedger) Ping(context.Context) error {
	switch state := l.conn.GetState(); state {
	case connectivity.Shutdown, connectivity.TransientFailure:
		return fmt.Errorf("fabric peer connection %s: %w", state, sentinel.ErrUnavailable)
	default:
		return nil
	}
}

// Close releases the gateway and the peer connection.
func (l *FabricLedger) Close() error {
	l.gateway.Close() //nolint:errcheck // connection closed below
	return l.conn.Close()
}

// classify maps gateway and chaincode failures onto sentinel errors. Chaincode
// messages are matched on the phrases the certificate contract emits.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "mvcc_read_conflict"):
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	case strings.Contains(msg, "cannot transition"), strings.Contains(msg, "invalid status"):
		return fmt.Errorf("%w: %w", sentinel.ErrInvalidState, err)
	}

	var commitErr *client.CommitError
	if errors.As(err, &commitErr) {
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	case codes.Aborted, codes.AlreadyExists:
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
