package sui

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/ruteri/tee-enclave-agent/bcs"
)

var ErrUnsupportedVariant = errors.New("unsupported enum variant")

// ObjectDigest is the content digest of an object version. It is encoded as a
// length-prefixed byte vector and rendered as base58.
type ObjectDigest [32]byte

func ParseObjectDigest(s string) (ObjectDigest, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return ObjectDigest{}, fmt.Errorf("invalid object digest %q: %w", s, err)
	}
	if len(raw) != 32 {
		return ObjectDigest{}, fmt.Errorf("invalid object digest %q: length %d", s, len(raw))
	}
	var d ObjectDigest
	copy(d[:], raw)
	return d, nil
}

func (d ObjectDigest) String() string {
	return base58.Encode(d[:])
}

func (d *ObjectDigest) MarshalBCS(e *bcs.Encoder) error {
	e.WriteBytes(d[:])
	return nil
}

func (d *ObjectDigest) UnmarshalBCS(dec *bcs.Decoder) error {
	raw, err := dec.ReadBytes()
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: object digest length %d", bcs.ErrInvalidEncoding, len(raw))
	}
	copy(d[:], raw)
	return nil
}

// ObjectRef pins an owned object at a specific version.
type ObjectRef struct {
	ObjectID ObjectID
	Version  uint64
	Digest   ObjectDigest
}

// SharedObject references a shared object by its id and the version it became shared at.
type SharedObject struct {
	ID                   ObjectID
	InitialSharedVersion uint64
	Mutable              bool
}

type ObjectArgKind uint8

const (
	ImmOrOwnedObjectArg ObjectArgKind = 0
	SharedObjectArg     ObjectArgKind = 1
)

type ObjectArg struct {
	Kind   ObjectArgKind
	Owned  ObjectRef
	Shared SharedObject
}

func (a *ObjectArg) MarshalBCS(e *bcs.Encoder) error {
	e.WriteULEB128(uint64(a.Kind))
	switch a.Kind {
	case ImmOrOwnedObjectArg:
		return e.Encode(&a.Owned)
	case SharedObjectArg:
		return e.Encode(&a.Shared)
	default:
		return fmt.Errorf("%w: object arg %d", ErrUnsupportedVariant, a.Kind)
	}
}

func (a *ObjectArg) UnmarshalBCS(d *bcs.Decoder) error {
	kind, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	a.Kind = ObjectArgKind(kind)
	switch a.Kind {
	case ImmOrOwnedObjectArg:
		return d.Decode(&a.Owned)
	case SharedObjectArg:
		return d.Decode(&a.Shared)
	default:
		return fmt.Errorf("%w: object arg %d", ErrUnsupportedVariant, kind)
	}
}

type CallArgKind uint8

const (
	PureCallArg   CallArgKind = 0
	ObjectCallArg CallArgKind = 1
)

// CallArg is a transaction input: either BCS bytes of a pure value or an object reference.
type CallArg struct {
	Kind   CallArgKind
	Pure   []byte
	Object ObjectArg
}

func (a *CallArg) MarshalBCS(e *bcs.Encoder) error {
	e.WriteULEB128(uint64(a.Kind))
	switch a.Kind {
	case PureCallArg:
		e.WriteBytes(a.Pure)
		return nil
	case ObjectCallArg:
		return e.Encode(&a.Object)
	default:
		return fmt.Errorf("%w: call arg %d", ErrUnsupportedVariant, a.Kind)
	}
}

func (a *CallArg) UnmarshalBCS(d *bcs.Decoder) error {
	kind, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	a.Kind = CallArgKind(kind)
	switch a.Kind {
	case PureCallArg:
		a.Pure, err = d.ReadBytes()
		return err
	case ObjectCallArg:
		return d.Decode(&a.Object)
	default:
		return fmt.Errorf("%w: call arg %d", ErrUnsupportedVariant, kind)
	}
}

type ArgumentKind uint8

const (
	GasCoinArgument      ArgumentKind = 0
	InputArgument        ArgumentKind = 1
	ResultArgument       ArgumentKind = 2
	NestedResultArgument ArgumentKind = 3
)

// Argument refers to the gas coin, an input, or the result of an earlier command.
type Argument struct {
	Kind   ArgumentKind
	Index  uint16
	Nested uint16
}

var GasCoin = Argument{Kind: GasCoinArgument}

func Input(i uint16) Argument  { return Argument{Kind: InputArgument, Index: i} }
func Result(i uint16) Argument { return Argument{Kind: ResultArgument, Index: i} }

func (a *Argument) MarshalBCS(e *bcs.Encoder) error {
	e.WriteULEB128(uint64(a.Kind))
	switch a.Kind {
	case GasCoinArgument:
	case InputArgument, ResultArgument:
		e.WriteU16(a.Index)
	case NestedResultArgument:
		e.WriteU16(a.Index)
		e.WriteU16(a.Nested)
	default:
		return fmt.Errorf("%w: argument %d", ErrUnsupportedVariant, a.Kind)
	}
	return nil
}

func (a *Argument) UnmarshalBCS(d *bcs.Decoder) error {
	kind, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	a.Kind = ArgumentKind(kind)
	switch a.Kind {
	case GasCoinArgument:
	case InputArgument, ResultArgument:
		a.Index, err = d.ReadU16()
	case NestedResultArgument:
		if a.Index, err = d.ReadU16(); err == nil {
			a.Nested, err = d.ReadU16()
		}
	default:
		err = fmt.Errorf("%w: argument %d", ErrUnsupportedVariant, kind)
	}
	return err
}

// StructTag is the only type argument form the agent emits. It is encoded as the
// Struct variant of TypeTag with no type parameters.
type StructTag struct {
	Address Address
	Module  string
	Name    string
}

const structTypeTag = 7

func (t *StructTag) MarshalBCS(e *bcs.Encoder) error {
	e.WriteULEB128(structTypeTag)
	e.WriteFixedBytes(t.Address[:])
	e.WriteString(t.Module)
	e.WriteString(t.Name)
	e.WriteULEB128(0)
	return nil
}

func (t *StructTag) UnmarshalBCS(d *bcs.Decoder) error {
	kind, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	if kind != structTypeTag {
		return fmt.Errorf("%w: type tag %d", ErrUnsupportedVariant, kind)
	}
	if err := d.Decode(&t.Address); err != nil {
		return err
	}
	if t.Module, err = d.ReadString(); err != nil {
		return err
	}
	if t.Name, err = d.ReadString(); err != nil {
		return err
	}
	params, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	if params != 0 {
		return fmt.Errorf("%w: generic struct tags", ErrUnsupportedVariant)
	}
	return nil
}

type ProgrammableMoveCall struct {
	Package       ObjectID
	Module        string
	Function      string
	TypeArguments []StructTag
	Arguments     []Argument
}

type TransferObjects struct {
	Objects   []Argument
	Recipient Argument
}

type SplitCoins struct {
	Coin    Argument
	Amounts []Argument
}

type MergeCoins struct {
	Destination Argument
	Sources     []Argument
}

type CommandKind uint8

const (
	MoveCallCommand        CommandKind = 0
	TransferObjectsCommand CommandKind = 1
	SplitCoinsCommand      CommandKind = 2
	MergeCoinsCommand      CommandKind = 3
)

// Command is one step of a programmable transaction. Only the field matching Kind is used.
type Command struct {
	Kind            CommandKind
	MoveCall        ProgrammableMoveCall
	TransferObjects TransferObjects
	SplitCoins      SplitCoins
	MergeCoins      MergeCoins
}

func (c *Command) MarshalBCS(e *bcs.Encoder) error {
	e.WriteULEB128(uint64(c.Kind))
	switch c.Kind {
	case MoveCallCommand:
		return e.Encode(&c.MoveCall)
	case TransferObjectsCommand:
		return e.Encode(&c.TransferObjects)
	case SplitCoinsCommand:
		return e.Encode(&c.SplitCoins)
	case MergeCoinsCommand:
		return e.Encode(&c.MergeCoins)
	default:
		return fmt.Errorf("%w: command %d", ErrUnsupportedVariant, c.Kind)
	}
}

func (c *Command) UnmarshalBCS(d *bcs.Decoder) error {
	kind, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	c.Kind = CommandKind(kind)
	switch c.Kind {
	case MoveCallCommand:
		return d.Decode(&c.MoveCall)
	case TransferObjectsCommand:
		return d.Decode(&c.TransferObjects)
	case SplitCoinsCommand:
		return d.Decode(&c.SplitCoins)
	case MergeCoinsCommand:
		return d.Decode(&c.MergeCoins)
	default:
		return fmt.Errorf("%w: command %d", ErrUnsupportedVariant, kind)
	}
}

// ProgrammableTransaction is the body of a transaction and also the policy payload
// that Seal key servers dry-run.
type ProgrammableTransaction struct {
	Inputs   []CallArg
	Commands []Command
}

type GasData struct {
	Payment []ObjectRef
	Owner   Address
	Price   uint64
	Budget  uint64
}

// TransactionData is the V1 transaction layout with a programmable transaction kind and
// no expiration.
type TransactionData struct {
	Kind    ProgrammableTransaction
	Sender  Address
	GasData GasData
}

func (t *TransactionData) MarshalBCS(e *bcs.Encoder) error {
	e.WriteULEB128(0) // TransactionData::V1
	e.WriteULEB128(0) // TransactionKind::ProgrammableTransaction
	if err := e.Encode(&t.Kind); err != nil {
		return err
	}
	if err := e.Encode(&t.Sender); err != nil {
		return err
	}
	if err := e.Encode(&t.GasData); err != nil {
		return err
	}
	e.WriteULEB128(0) // TransactionExpiration::None
	return nil
}

func (t *TransactionData) UnmarshalBCS(d *bcs.Decoder) error {
	for _, what := range []string{"transaction data version", "transaction kind"} {
		v, err := d.ReadULEB128()
		if err != nil {
			return err
		}
		if v != 0 {
			return fmt.Errorf("%w: %s %d", ErrUnsupportedVariant, what, v)
		}
	}
	if err := d.Decode(&t.Kind); err != nil {
		return err
	}
	if err := d.Decode(&t.Sender); err != nil {
		return err
	}
	if err := d.Decode(&t.GasData); err != nil {
		return err
	}
	expiration, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	if expiration != 0 {
		return fmt.Errorf("%w: expiration %d", ErrUnsupportedVariant, expiration)
	}
	return nil
}

// PTBBuilder assembles a ProgrammableTransaction, handing out Arguments for inputs and
// command results as they are added.
type PTBBuilder struct {
	ptb ProgrammableTransaction
}

func NewPTBBuilder() *PTBBuilder {
	return &PTBBuilder{}
}

// Pure adds a pure input holding the BCS encoding of value.
func (b *PTBBuilder) Pure(value any) (Argument, error) {
	encoded, err := bcs.Marshal(value)
	if err != nil {
		return Argument{}, fmt.Errorf("failed to encode pure input: %w", err)
	}
	return b.input(CallArg{Kind: PureCallArg, Pure: encoded}), nil
}

// SharedObject adds a shared object input.
func (b *PTBBuilder) SharedObject(id ObjectID, initialSharedVersion uint64, mutable bool) Argument {
	return b.input(CallArg{Kind: ObjectCallArg, Object: ObjectArg{
		Kind:   SharedObjectArg,
		Shared: SharedObject{ID: id, InitialSharedVersion: initialSharedVersion, Mutable: mutable},
	}})
}

// OwnedObject adds an owned or immutable object input.
func (b *PTBBuilder) OwnedObject(ref ObjectRef) Argument {
	return b.input(CallArg{Kind: ObjectCallArg, Object: ObjectArg{Kind: ImmOrOwnedObjectArg, Owned: ref}})
}

func (b *PTBBuilder) input(arg CallArg) Argument {
	b.ptb.Inputs = append(b.ptb.Inputs, arg)
	return Input(uint16(len(b.ptb.Inputs) - 1))
}

func (b *PTBBuilder) command(cmd Command) Argument {
	b.ptb.Commands = append(b.ptb.Commands, cmd)
	return Result(uint16(len(b.ptb.Commands) - 1))
}

func (b *PTBBuilder) MoveCall(pkg ObjectID, module, function string, typeArgs []StructTag, args ...Argument) Argument {
	return b.command(Command{Kind: MoveCallCommand, MoveCall: ProgrammableMoveCall{
		Package:       pkg,
		Module:        module,
		Function:      function,
		TypeArguments: typeArgs,
		Arguments:     args,
	}})
}

func (b *PTBBuilder) SplitCoins(coin Argument, amounts ...Argument) Argument {
	return b.command(Command{Kind: SplitCoinsCommand, SplitCoins: SplitCoins{Coin: coin, Amounts: amounts}})
}

func (b *PTBBuilder) MergeCoins(destination Argument, sources ...Argument) Argument {
	return b.command(Command{Kind: MergeCoinsCommand, MergeCoins: MergeCoins{Destination: destination, Sources: sources}})
}

func (b *PTBBuilder) TransferObjects(objects []Argument, recipient Argument) Argument {
	return b.command(Command{Kind: TransferObjectsCommand, TransferObjects: TransferObjects{Objects: objects, Recipient: recipient}})
}

func (b *PTBBuilder) Finish() ProgrammableTransaction {
	return b.ptb
}
