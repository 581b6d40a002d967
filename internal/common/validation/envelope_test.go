package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var submissionSchema = Schema{
	Accept:   []string{"nySoknad"},
	Required: []string{"signatur", "fnrBruker", "soknad", "soknad.soknad.id"},
}

func TestValidate_Accepts(t *testing.T) {
	v, err := NewValidator(submissionSchema)
	require.NoError(t, err)

	event, rejected := v.Validate([]byte(`{
		"eventName": "nySoknad",
		"eventId": "7f0c7d1e-5a57-4c0d-9d4a-9d6c3b2d2a11",
		"signatur": "BRUKER_BEKREFTER",
		"fnrBruker": "12345678910",
		"antall": 2,
		"soknad": {"soknad": {"id": "62f68547-11ae-418c-8ab7-4d2af985bcd9"}}
	}`))
	require.Nil(t, rejected)
	require.NotNil(t, event)

	assert.Equal(t, "nySoknad", event.Name())
	assert.Equal(t, "12345678910", event.String("fnrBruker"))
	assert.Equal(t, "62f68547-11ae-418c-8ab7-4d2af985bcd9", event.String("soknad.soknad.id"))
	assert.Equal(t, "2", event.String("antall"))
	assert.True(t, event.Has("soknad.soknad"))
	assert.False(t, event.Has("soknad.missing"))
	assert.JSONEq(t, `{"id": "62f68547-11ae-418c-8ab7-4d2af985bcd9"}`, string(event.Raw("soknad.soknad")))
	assert.Nil(t, event.Raw("nope"))
	assert.Equal(t, "", event.SchemaVersion())

	var decoded struct {
		Signatur string `json:"signatur"`
	}
	require.NoError(t, event.Decode(&decoded))
	assert.Equal(t, "BRUKER_BEKREFTER", decoded.Signatur)
}

func TestValidate_Rejections(t *testing.T) {
	v, err := NewValidator(submissionSchema)
	require.NoError(t, err)

	tests := []struct {
		name           string
		raw            string
		wantMissing    []string
		wantMismatched []string
		wantMalformed  bool
	}{
		{
			name:          "malformed json",
			raw:           `{"eventName": `,
			wantMalformed: true,
		},
		{
			name:           "other event",
			raw:            `{"eventName": "godkjentAvBruker", "signatur": "x", "fnrBruker": "1", "soknad": {"soknad": {"id": "a"}}}`,
			wantMismatched: []string{"eventName"},
		},
		{
			name:        "missing discriminator",
			raw:         `{"signatur": "x", "fnrBruker": "1", "soknad": {"soknad": {"id": "a"}}}`,
			wantMissing: []string{"eventName"},
		},
		{
			name:        "missing top-level fields",
			raw:         `{"eventName": "nySoknad", "soknad": {"soknad": {"id": "a"}}}`,
			wantMissing: []string{"fnrBruker", "signatur"},
		},
		{
			name:        "missing nested leaf",
			raw:         `{"eventName": "nySoknad", "signatur": "x", "fnrBruker": "1", "soknad": {"soknad": {}}}`,
			wantMissing: []string{"soknad.soknad.id"},
		},
		{
			name:           "null leaf",
			raw:            `{"eventName": "nySoknad", "signatur": null, "fnrBruker": "1", "soknad": {"soknad": {"id": "a"}}}`,
			wantMismatched: []string{"signatur"},
		},
		{
			name:           "intermediate is not an object",
			raw:            `{"eventName": "nySoknad", "signatur": "x", "fnrBruker": "1", "soknad": "text"}`,
			wantMismatched: []string{"soknad"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, rejected := v.Validate([]byte(tt.raw))
			assert.Nil(t, event)
			require.NotNil(t, rejected)
			assert.Equal(t, tt.wantMalformed, rejected.Malformed)
			assert.Equal(t, tt.wantMissing, rejected.Missing)
			assert.Equal(t, tt.wantMismatched, rejected.Mismatched)
			assert.NotEmpty(t, rejected.String())
		})
	}
}

func TestValidate_SetMembership(t *testing.T) {
	v := MustValidator(Schema{
		Accept:   []string{"hm-InfotrygdSakOpprettet", "hm-HotsakSakOpprettet"},
		Required: []string{"soknadId"},
	})

	for _, name := range v.Accepts() {
		event, rejected := v.Validate([]byte(`{"eventName": "` + name + `", "soknadId": "x", "schemaVersion": 2}`))
		require.Nil(t, rejected, name)
		assert.Equal(t, name, event.Name())
		assert.Equal(t, "2", event.SchemaVersion())
	}

	_, rejected := v.Validate([]byte(`{"eventName": "hm-NyOrdrelinje", "soknadId": "x"}`))
	require.NotNil(t, rejected)
	assert.Equal(t, []string{"eventName"}, rejected.Mismatched)
}

func TestValidate_CustomDiscriminator(t *testing.T) {
	v, err := NewValidator(Schema{Discriminator: "type", Accept: []string{"ping"}})
	require.NoError(t, err)

	_, rejected := v.Validate([]byte(`{"type": "ping"}`))
	assert.Nil(t, rejected)

	_, rejected = v.Validate([]byte(`["ping"]`))
	require.NotNil(t, rejected)
	assert.False(t, rejected.Malformed)
}

func TestNewValidator_RequiresAcceptedValues(t *testing.T) {
	_, err := NewValidator(Schema{})
	assert.Error(t, err)
	assert.Panics(t, func() { MustValidator(Schema{}) })
}
