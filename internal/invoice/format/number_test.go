package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		template string
		seq      int64
		want     string
		wantErr  error
	}{
		{name: "default", template: DefaultInvoiceNumberTemplate, seq: 42, want: "INV-20240630-000042"},
		{name: "plain seq", template: "{YY}{MM}-{SEQ}", seq: 7, want: "2406-7"},
		{name: "seq wider than pad", template: "{SEQ2}", seq: 1234, want: "1234"},
		{name: "empty template", template: " ", seq: 1, wantErr: ErrEmptyTemplate},
		{name: "no seq", template: "INV-{YYYY}", seq: 1, wantErr: ErrNoSequence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatInvoiceNumber(tc.template, issued, tc.seq)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatInvoiceNumberRejectsBadInput(t *testing.T) {
	issued := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	for _, template := range []string{"INV-{FOO}-{SEQ}", "INV-{YYYY4}-{SEQ}", "INV-{SEQ"} {
		_, err := FormatInvoiceNumber(template, issued, 1)
		assert.Error(t, err, template)
	}
	_, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, 0)
	assert.Error(t, err)
}

func TestCheckNumberTemplate(t *testing.T) {
	assert.NoError(t, CheckNumberTemplate(DefaultInvoiceNumberTemplate))
	assert.ErrorIs(t, CheckNumberTemplate("INV-{YYYY}"), ErrNoSequence)
}
