package consts

const (
	// Contract kind TypeIDs
	ClosedMinterID    uint8 = 0
	OpenMinterID      uint8 = 1
	NftOpenMinterID   uint8 = 2
	NftParallelID     uint8 = 3
	CAT20ID           uint8 = 4
	CAT721ID          uint8 = 5
	GuardID           uint8 = 6
	NftGuardID        uint8 = 7
	MaxContractKind   uint8 = NftGuardID
	InvalidContractID uint8 = 0xff
)

// KindName returns the human readable name for a contract kind.
func KindName(kind uint8) string {
	switch kind {
	case ClosedMinterID:
		return "closed-minter"
	case OpenMinterID:
		return "open-minter"
	case NftOpenMinterID:
		return "nft-open-minter"
	case NftParallelID:
		return "nft-parallel-minter"
	case CAT20ID:
		return "cat20"
	case CAT721ID:
		return "cat721"
	case GuardID:
		return "guard"
	case NftGuardID:
		return "nft-guard"
	default:
		return "unknown"
	}
}
