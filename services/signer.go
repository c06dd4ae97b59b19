package services

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/google/uuid"

	"bountypool-backend/core/bounty"
)

const digestTag = "bountypool/v1"

// Envelope is a signed invocation: instruction bytes, positional account
// handles, and BIP-340 signatures keyed by the signing account.
type Envelope struct {
	ProgramData []byte
	Accounts    []bounty.Identity
	Signatures  map[bounty.Identity][]byte
}

// MessageDigest is the 32-byte hash every signer commits to.
func MessageDigest(programID bounty.Identity, accounts []bounty.Identity, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(digestTag))
	h.Write(programID[:])
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(accounts)))
	h.Write(n[:])
	for _, a := range accounts {
		h.Write(a[:])
	}
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// PartyIdentity returns the x-only public key of priv as an identity.
func PartyIdentity(priv *btcec.PrivateKey) bounty.Identity {
	var id bounty.Identity
	copy(id[:], schnorr.SerializePubKey(priv.PubKey()))
	return id
}

// NewTaskHandle derives a fresh record slot handle.
func NewTaskHandle() bounty.Identity {
	return sha256.Sum256([]byte("task:" + uuid.NewString()))
}

// Sign adds priv's signature over the envelope digest.
func (e *Envelope) Sign(programID bounty.Identity, priv *btcec.PrivateKey) error {
	digest := MessageDigest(programID, e.Accounts, e.ProgramData)
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return fmt.Errorf("sign envelope: %w", err)
	}
	if e.Signatures == nil {
		e.Signatures = make(map[bounty.Identity][]byte)
	}
	e.Signatures[PartyIdentity(priv)] = sig.Serialize()
	return nil
}

// Verify checks every signature and returns the account list with signer
// flags set. A signature that does not verify, or that belongs to an
// account not listed, rejects the whole envelope.
func (e *Envelope) Verify(programID bounty.Identity) ([]bounty.AccountMeta, error) {
	digest := MessageDigest(programID, e.Accounts, e.ProgramData)
	signed := make(map[bounty.Identity]bool, len(e.Signatures))
	for key, raw := range e.Signatures {
		if !containsIdentity(e.Accounts, key) {
			return nil, fmt.Errorf("%w: signature for unlisted account %s", bounty.ErrUnauthorized, key)
		}
		pub, err := schnorr.ParsePubKey(key[:])
		if err != nil {
			return nil, fmt.Errorf("%w: account %s is not a public key: %v", bounty.ErrUnauthorized, key, err)
		}
		sig, err := schnorr.ParseSignature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed signature for %s: %v", bounty.ErrUnauthorized, key, err)
		}
		if !sig.Verify(digest[:], pub) {
			return nil, fmt.Errorf("%w: bad signature for %s", bounty.ErrUnauthorized, key)
		}
		signed[key] = true
	}

	metas := make([]bounty.AccountMeta, len(e.Accounts))
	for i, a := range e.Accounts {
		metas[i] = bounty.AccountMeta{Key: a, IsSigner: signed[a]}
	}
	return metas, nil
}

func containsIdentity(list []bounty.Identity, id bounty.Identity) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
