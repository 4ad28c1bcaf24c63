package registry

import (
	"encoding/json"
	"fmt"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/domain"
)

func unmarshalCacheConfig(raw []byte, out *domain.CacheConfig) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrSerialization, err)
	}
	return nil
}
