package cryptoutils

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_client "github.com/google/go-tdx-guest/client"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"
)

var (
	DCAPAttestation = AttestationType{StringID: "qemu-tdx"}

	RemoteAttestation = AttestationType{StringID: "remote-tdx"}

	DummyAttestation = AttestationType{StringID: "dummy"}
)

type AttestationType struct {
	StringID string
}

type AttestationProvider interface {
	AttestationType() AttestationType
	Attest(ctx context.Context, reportData [64]byte) ([]byte, error)
}

// AttestationProviderFor returns the provider named by an --attestation-type flag value.
func AttestationProviderFor(kind, remoteAddress string) (AttestationProvider, error) {
	switch kind {
	case DCAPAttestation.StringID:
		return DCAPAttestationProvider{}, nil
	case RemoteAttestation.StringID:
		if remoteAddress == "" {
			return nil, errors.New("remote attestation requires a quote provider address")
		}
		return &RemoteAttestationProvider{Address: remoteAddress}, nil
	case DummyAttestation.StringID:
		return DummyAttestationProvider{}, nil
	default:
		return nil, fmt.Errorf("%w: attestation type %q", errors.ErrUnsupported, kind)
	}
}

// ReportDataForPublicKey binds a quote to the agent's signing key: the public key
// fills the first half of the report data and the rest is zero.
func ReportDataForPublicKey(pub ed25519.PublicKey) [64]byte {
	var reportData [64]byte
	copy(reportData[:], pub)
	return reportData
}

// RemoteAttestationProvider asks a quote provider service running next to the agent.
type RemoteAttestationProvider struct {
	Address string
}

func (*RemoteAttestationProvider) AttestationType() AttestationType { return RemoteAttestation }

func (p *RemoteAttestationProvider) Attest(ctx context.Context, reportData [64]byte) ([]byte, error) {
	url := fmt.Sprintf("%s/attest/%s", p.Address, hex.EncodeToString(reportData[:]))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return rawQuote, nil
}

type DCAPAttestationProvider struct{}

func (DCAPAttestationProvider) AttestationType() AttestationType { return DCAPAttestation }

func (DCAPAttestationProvider) Attest(_ context.Context, reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// DummyAttestationProvider is for running outside a TEE.
type DummyAttestationProvider struct{}

func (DummyAttestationProvider) AttestationType() AttestationType {
	return DummyAttestation
}

func (DummyAttestationProvider) Attest(_ context.Context, reportData [64]byte) ([]byte, error) {
	return []byte(fmt.Sprintf("dummy attestation for %x", reportData)), nil
}

// VerifyDCAPAttestation checks a TDX quote and that it carries reportData.
// It returns the measurement registers keyed by index: MRTD, RTMR0-3, MRCONFIGID,
// MROWNER, MROWNERCONFIG.
func VerifyDCAPAttestation(reportData [64]byte, report []byte) (map[int]string, error) {
	protoQuote, err := tdx_abi.QuoteToProto(report)
	if err != nil {
		return nil, fmt.Errorf("could not parse quote: %w", err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type: %T", protoQuote)
	}

	if err := verify.TdxQuote(protoQuote, verify.DefaultOptions()); err != nil {
		return nil, fmt.Errorf("quote verification failed: %w", err)
	}

	body := v4Quote.TdQuoteBody
	if !bytes.Equal(body.ReportData, reportData[:]) {
		return nil, fmt.Errorf("invalid report data %x, expected %x", body.ReportData, reportData[:])
	}

	return map[int]string{
		0: hex.EncodeToString(body.MrTd),
		1: hex.EncodeToString(body.Rtmrs[0]),
		2: hex.EncodeToString(body.Rtmrs[1]),
		3: hex.EncodeToString(body.Rtmrs[2]),
		4: hex.EncodeToString(body.Rtmrs[3]),
		5: hex.EncodeToString(body.MrConfigId),
		6: hex.EncodeToString(body.MrOwner),
		7: hex.EncodeToString(body.MrOwnerConfig),
	}, nil
}
