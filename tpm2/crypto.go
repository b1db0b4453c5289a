package tpm2

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	// Register the hashes Hash can hand out.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

const (
	labelSessionKey = "ATH"
	labelXOR        = "XOR"
	labelCFB        = "CFB"
)

// Hash returns the crypto.Hash associated with a TPMIAlgHash.
func (a TPMAlgID) Hash() (crypto.Hash, error) {
	switch a {
	case TPMAlgSHA1:
		return crypto.SHA1, nil
	case TPMAlgSHA256:
		return crypto.SHA256, nil
	case TPMAlgSHA384:
		return crypto.SHA384, nil
	case TPMAlgSHA512:
		return crypto.SHA512, nil
	}
	return crypto.Hash(0), fmt.Errorf("%w: hash algorithm 0x%04x", ErrUnsupportedAlgorithm, uint16(a))
}

// paramCipher describes how a session transforms its first parameter.
type paramCipher struct {
	alg     TPMIAlgSym // TPMAlgAES or TPMAlgXOR
	keyBits int
	hash    TPMIAlgHash
}

// symDef returns the symmetric definition sent in TPM2_StartAuthSession.
func (c *paramCipher) symDef() TPMTSymDef {
	switch {
	case c == nil:
		return TPMTSymDef{Algorithm: TPMAlgNull}
	case c.alg == TPMAlgXOR:
		return TPMTSymDef{
			Algorithm: TPMAlgXOR,
			KeyBits:   SymKeyBitsXOR(c.hash),
			Mode:      SymModeXOR{},
		}
	default:
		return TPMTSymDef{
			Algorithm: TPMAlgAES,
			KeyBits:   SymKeyBitsAES(c.keyBits),
			Mode:      SymModeAES(TPMAlgCFB),
		}
	}
}

// apply transforms data in place. newer and older are the nonces of the
// sending and receiving side, respectively. XOR is its own inverse; CFB is
// not, so the direction must be given.
func (c *paramCipher) apply(key, newer, older, data []byte, encrypt bool) error {
	switch c.alg {
	case TPMAlgXOR:
		mask, err := KDFa(c.hash, key, labelXOR, newer, older, len(data)*8)
		if err != nil {
			return err
		}
		for i := range data {
			data[i] ^= mask[i]
		}
		return nil
	case TPMAlgAES:
		keyBytes := c.keyBits / 8
		material, err := KDFa(c.hash, key, labelCFB, newer, older, c.keyBits+aes.BlockSize*8)
		if err != nil {
			return err
		}
		block, err := aes.NewCipher(material[:keyBytes])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
		}
		iv := material[keyBytes:]
		if encrypt {
			cipher.NewCFBEncrypter(block, iv).XORKeyStream(data, data)
		} else {
			cipher.NewCFBDecrypter(block, iv).XORKeyStream(data, data)
		}
		return nil
	}
	return fmt.Errorf("%w: parameter encryption with 0x%04x", ErrUnsupportedAlgorithm, uint16(c.alg))
}
