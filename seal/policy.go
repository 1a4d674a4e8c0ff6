package seal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/sui"
)

const (
	PolicyModule  = "seal_policy"
	ApproveFunc   = "seal_approve"
	approvePrefix = "seal_approve"
)

var ErrPolicyDenied = errors.New("access denied by policy")

// PolicyTransaction builds the payload key servers evaluate before releasing keys for
// keyID: package::seal_policy::seal_approve(keyID, enclave).
func PolicyTransaction(packageID sui.ObjectID, keyID []byte, enclaveID sui.ObjectID, enclaveInitialVersion uint64) (*sui.ProgrammableTransaction, error) {
	b := sui.NewPTBBuilder()
	id, err := b.Pure(keyID)
	if err != nil {
		return nil, err
	}
	enclave := b.SharedObject(enclaveID, enclaveInitialVersion, false)
	b.MoveCall(packageID, PolicyModule, ApproveFunc, nil, id, enclave)
	ptb := b.Finish()
	return &ptb, nil
}

// ApprovedIdentity is one identity a policy transaction asks keys for.
type ApprovedIdentity struct {
	PackageID sui.ObjectID
	ID        []byte
}

func (a ApprovedIdentity) FullID() []byte {
	return FullID(a.PackageID, a.ID)
}

// ApprovedIdentities extracts the identities requested by the seal_approve* calls of ptb.
// Every command must be such a call on a single package, with a pure byte vector id as
// its first argument.
func ApprovedIdentities(ptb *sui.ProgrammableTransaction) ([]ApprovedIdentity, error) {
	if len(ptb.Commands) == 0 {
		return nil, fmt.Errorf("%w: empty policy transaction", ErrPolicyDenied)
	}

	var out []ApprovedIdentity
	for i, cmd := range ptb.Commands {
		if cmd.Kind != sui.MoveCallCommand || !strings.HasPrefix(cmd.MoveCall.Function, approvePrefix) {
			return nil, fmt.Errorf("%w: command %d is not a %s call", ErrPolicyDenied, i, approvePrefix)
		}
		call := cmd.MoveCall
		if len(out) > 0 && call.Package != out[0].PackageID {
			return nil, fmt.Errorf("%w: calls span multiple packages", ErrPolicyDenied)
		}
		if len(call.Arguments) == 0 || call.Arguments[0].Kind != sui.InputArgument {
			return nil, fmt.Errorf("%w: command %d has no id argument", ErrPolicyDenied, i)
		}
		idx := int(call.Arguments[0].Index)
		if idx >= len(ptb.Inputs) || ptb.Inputs[idx].Kind != sui.PureCallArg {
			return nil, fmt.Errorf("%w: command %d id is not a pure input", ErrPolicyDenied, i)
		}
		var id []byte
		if err := bcs.Unmarshal(ptb.Inputs[idx].Pure, &id); err != nil {
			return nil, fmt.Errorf("%w: command %d id: %v", ErrPolicyDenied, i, err)
		}
		out = append(out, ApprovedIdentity{PackageID: call.Package, ID: id})
	}
	return out, nil
}
