package clusters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraits(t *testing.T) {
	tests := []struct {
		traits Traits
		start  bool
		end    bool
		valid  bool
		str    string
	}{
		{TraitNone, false, false, true, "None"},
		{TraitStart, true, false, true, "Start"},
		{TraitEnd, false, true, true, "End"},
		{TraitStart | TraitEnd, true, true, true, "Start|End"},
		{Traits(0x81), true, false, false, "Start|Invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			h := Header{Traits: tt.traits}
			assert.Equal(t, tt.start, h.IsStart())
			assert.Equal(t, tt.end, h.IsEnd())
			assert.Equal(t, tt.valid, tt.traits.Valid())
			assert.Equal(t, tt.str, tt.traits.String())
		})
	}
}
