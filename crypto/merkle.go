package crypto

// MerkleRoot builds a binary Merkle tree over hashes using SHA-256 and
// returns its root. When a level has an odd number of nodes, the last node
// is duplicated before pairing. An empty list yields ZeroHash.
func MerkleRoot(hashes []Hash) Hash {
	if len(hashes) == 0 {
		return ZeroHash
	}
	level := make([]Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		var buf [2 * HashSize]byte
		for i := range next {
			copy(buf[:HashSize], level[2*i][:])
			copy(buf[HashSize:], level[2*i+1][:])
			next[i] = HashBytes(buf[:])
		}
		level = next
	}
	return level[0]
}
