package toolchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindVariant(t *testing.T) {
	tests := []struct {
		kind Kind
		want Variant
	}{
		{KindVivado, VariantNativeEnv},
		{KindArm, VariantDownloadable},
		{KindSystem, VariantSystem},
		{KindBareMetal, VariantBareMetal},
		{Kind("msvc"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Variant(), tt.kind)
	}
}
