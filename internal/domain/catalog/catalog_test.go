package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     ItemRef
		wantErr bool
	}{
		{name: "course only", ref: CourseRef(1)},
		{name: "section only", ref: SectionRef(2)},
		{name: "neither", ref: ItemRef{}, wantErr: true},
		{name: "both", ref: ItemRef{CourseID: 1, SectionID: 2}, wantErr: true},
		{name: "negative", ref: ItemRef{CourseID: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidItemRef)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestItemRef_Kind(t *testing.T) {
	assert.Equal(t, KindCourse, CourseRef(7).Kind())
	assert.Equal(t, int64(7), CourseRef(7).ID())
	assert.Equal(t, KindSection, SectionRef(9).Kind())
	assert.Equal(t, int64(9), SectionRef(9).ID())
	assert.Equal(t, "section:9", SectionRef(9).String())
}

func TestEffectivePrice(t *testing.T) {
	discount := decimal.NewFromInt(800_000)
	withDiscount := Course{Price: decimal.NewFromInt(1_000_000), DiscountPrice: &discount}
	assert.True(t, discount.Equal(withDiscount.EffectivePrice()))

	plain := Course{Price: decimal.NewFromInt(1_000_000)}
	assert.True(t, decimal.NewFromInt(1_000_000).Equal(plain.EffectivePrice()))

	price := decimal.NewFromInt(250_000)
	assert.True(t, price.Equal(Section{Price: &price}.EffectivePrice()))
	assert.True(t, decimal.Zero.Equal(Section{}.EffectivePrice()))
}

func TestItemNotFoundError_IsErrNotFound(t *testing.T) {
	err := &ItemNotFoundError{Ref: CourseRef(3)}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "course 3 not found", err.Error())
}
