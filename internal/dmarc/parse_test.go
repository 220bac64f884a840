package dmarc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotARecord(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"",
		" v=DMARC1;p=none",
		"\tv=DMARC1;p=none",
		"V=DMARC1;p=none",
		"v=spf1 include:_spf.example.com ~all",
		"v=DMARC2;p=none",
		"v=dmarc1;p=none",
		"v=DMARC1 p=none",
		"v=DMARC1;",
		"v=DMARC1;p=",
		"v=DMARC1;p= none",
		"v = DMARC1 ; p = none",
		"v=DMARC1;p=None",
		"v=DMARC1;sp=none;p=none",
		"\"v=DMARC1;p=none\"",
		"google-site-verification=abc",
	} {
		rec, ok := Parse(s)
		assert.False(t, ok, "%q", s)
		assert.Nil(t, rec, "%q", s)
	}
}

func TestParseMinimal(t *testing.T) {
	t.Parallel()

	rec, ok := Parse("v=DMARC1;p=reject")
	require.True(t, ok)

	assert.Equal(t, "DMARC1", rec.V.Value)
	assert.True(t, rec.V.Explicit)
	assert.True(t, rec.V.Valid)

	assert.Equal(t, PolicyReject, rec.P.Value)
	assert.True(t, rec.P.Explicit)
	assert.True(t, rec.P.Valid)

	assert.Equal(t, defaulted(AlignmentRelaxed), rec.ADKIM)
	assert.Equal(t, defaulted(AlignmentRelaxed), rec.ASPF)
	assert.Equal(t, defaulted(100), rec.PCT)
	assert.Equal(t, defaulted(86400), rec.RI)
	assert.Equal(t, []string{"afrf"}, rec.RF.Value)
	assert.False(t, rec.RF.Explicit)
	assert.Equal(t, []string{"0"}, rec.FO.Value)
	assert.False(t, rec.FO.Explicit)

	assert.False(t, rec.SP.Explicit)
	assert.True(t, rec.SP.Valid)
	assert.Empty(t, rec.SP.Value)
	assert.False(t, rec.RUA.Explicit)
	assert.Nil(t, rec.RUA.Value)
	assert.False(t, rec.RUF.Explicit)

	assert.Empty(t, rec.UnknownTags)
	assert.False(t, rec.RemainderIgnored())
	assert.True(t, rec.IsValid())
}

func TestParseExplicitTags(t *testing.T) {
	t.Parallel()

	rec, ok := Parse("v=DMARC1;p=none;pct=50;adkim=s")
	require.True(t, ok)

	assert.Equal(t, PolicyNone, rec.P.Value)
	assert.Equal(t, TagValue[int]{Value: 50, Raw: "50", Explicit: true, Valid: true}, rec.PCT)
	assert.Equal(t, TagValue[Alignment]{Value: AlignmentStrict, Raw: "s", Explicit: true, Valid: true}, rec.ADKIM)
	assert.True(t, rec.IsValid())
}

func TestParseInvalidPercentage(t *testing.T) {
	t.Parallel()

	rec, ok := Parse("v=DMARC1;p=none;pct=150")
	require.True(t, ok)

	assert.True(t, rec.PCT.Explicit)
	assert.False(t, rec.PCT.Valid)
	assert.Equal(t, "150", rec.PCT.Raw)
	assert.Equal(t, "150", rec.PCT.String())
	assert.False(t, rec.IsValid())
	// pure query
	assert.False(t, rec.IsValid())
}

func TestParseGarbageRemainder(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"v=DMARC1;p=none!!!garbage!!!",
		"v=DMARC1;p=none;pct",
		"v=DMARC1;p=none;pct=",
		"v=DMARC1;p=none;1pct=50",
		"v=DMARC1;p=none;p-ct=50",
		"v=DMARC1;p=none;pct=50;pct=60",
		"v=DMARC1;p=none;rua=mailto:a@example.com;;",
		"v=DMARC1;p=none;rua=\x01mailto:a@example.com",
		"v=DMARC1;p=none;rua=mailto:ä@example.ä",
		"v=DMARC1;p=nonesense",
	} {
		rec, ok := Parse(s)
		require.True(t, ok, "%q", s)
		assert.True(t, rec.RemainderIgnored(), "%q", s)
		assert.Equal(t, PolicyNone, rec.P.Value, "%q", s)
		assert.True(t, rec.P.Explicit, "%q", s)
		assert.False(t, rec.PCT.Explicit, "%q", s)
		assert.False(t, rec.RUA.Explicit, "%q", s)
		assert.Empty(t, rec.UnknownTags, "%q", s)
		assert.True(t, rec.IsValid(), "%q", s)
	}
}

func TestParseWhitespaceAndSemicolons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"spaces around separators", "v = DMARC1 ; p =quarantine; pct = 20 ; aspf = s"},
		{"tabs", "v\t=\tDMARC1;\tp=quarantine;\tpct=20;aspf=s"},
		{"trailing semicolon", "v=DMARC1;p=quarantine;pct=20;aspf=s;"},
		{"no semicolon before first tag", "v=DMARC1;p=quarantine pct=20;aspf=s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, ok := Parse(tc.in)
			require.True(t, ok)
			assert.False(t, rec.RemainderIgnored())
			assert.Equal(t, PolicyQuarantine, rec.P.Value)
			assert.Equal(t, 20, rec.PCT.Value)
			assert.Equal(t, AlignmentStrict, rec.ASPF.Value)
			assert.True(t, rec.IsValid())
		})
	}
}

func TestParseTagValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		valid bool
		check func(t *testing.T, rec *Record)
	}{
		{"v=DMARC1;p=reject;adkim=x", false, func(t *testing.T, rec *Record) {
			assert.Equal(t, Alignment("x"), rec.ADKIM.Value)
			assert.False(t, rec.ADKIM.Valid)
		}},
		{"v=DMARC1;p=reject;aspf=relaxed", false, func(t *testing.T, rec *Record) {
			assert.Equal(t, "relaxed", rec.ASPF.Raw)
		}},
		{"v=DMARC1;p=reject;fo=0:1:d:s", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, []string{"0", "1", "d", "s"}, rec.FO.Value)
		}},
		{"v=DMARC1;p=reject;fo=1:x", false, func(t *testing.T, rec *Record) {
			assert.Equal(t, []string{"1", "x"}, rec.FO.Value)
		}},
		{"v=DMARC1;p=reject;pct=0", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, 0, rec.PCT.Value)
		}},
		{"v=DMARC1;p=reject;pct=-1", false, nil},
		{"v=DMARC1;p=reject;pct=abc", false, nil},
		{"v=DMARC1;p=reject;rf=afrf:iodef", false, func(t *testing.T, rec *Record) {
			assert.Equal(t, []string{"afrf", "iodef"}, rec.RF.Value)
		}},
		{"v=DMARC1;p=reject;ri=3600", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, 3600, rec.RI.Value)
		}},
		{"v=DMARC1;p=reject;ri=-5", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, -5, rec.RI.Value)
		}},
		{"v=DMARC1;p=reject;ri=daily", false, nil},
		{"v=DMARC1;p=reject;ri=99999999999999999999", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, math.MaxInt, rec.RI.Value)
			assert.Equal(t, "99999999999999999999", rec.RI.Raw)
		}},
		{"v=DMARC1;p=reject;ri=-99999999999999999999", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, math.MinInt, rec.RI.Value)
		}},
		{"v=DMARC1;p=reject;ri=+86_400", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, 86400, rec.RI.Value)
		}},
		{"v=DMARC1;p=reject;ri=86__400", false, nil},
		{"v=DMARC1;p=reject;ri=_1", false, nil},
		{"v=DMARC1;p=reject;ri=1_", false, nil},
		{"v=DMARC1;p=reject;ri=0x10", false, nil},
		{"v=DMARC1;p=reject;pct=5_0", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, 50, rec.PCT.Value)
		}},
		{"v=DMARC1;p=reject;pct=+100", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, 100, rec.PCT.Value)
		}},
		{"v=DMARC1;p=reject;pct=100000000000000000000", false, nil},
		{"v=DMARC1;p=reject;sp=quarantine", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, PolicyQuarantine, rec.SP.Value)
			assert.True(t, rec.SP.Explicit)
		}},
		{"v=DMARC1;p=reject;sp=block", false, nil},
		{"v=DMARC1;p=reject;rua=mailto:a@example.com, mailto:b@example.com", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, []string{"mailto:a@example.com", "mailto:b@example.com"}, rec.RUA.Value)
			assert.True(t, rec.RUA.Explicit)
		}},
		{"v=DMARC1;p=reject;ruf=not-a-uri", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, []string{"not-a-uri"}, rec.RUF.Value)
		}},
		{"v=DMARC1;p=reject;foo=bar;x_1=a=b", true, func(t *testing.T, rec *Record) {
			assert.Equal(t, map[string]string{"foo": "bar", "x_1": "a=b"}, rec.UnknownTags)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			rec, ok := Parse(tc.in)
			require.True(t, ok)
			assert.False(t, rec.RemainderIgnored())
			assert.Equal(t, tc.valid, rec.IsValid())
			if tc.check != nil {
				tc.check(t, rec)
			}
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	t.Parallel()

	const s = "v=DMARC1; p=quarantine; rua=mailto:r@example.com; pct=abc; fo=1"
	a, ok := Parse(s)
	require.True(t, ok)
	b, ok := Parse(s)
	require.True(t, ok)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.IsValid(), b.IsValid())
}

func TestIsValidFollowsTags(t *testing.T) {
	t.Parallel()

	rec, ok := Parse("v=DMARC1; p=reject; pct=50; rua=mailto:r@example.com")
	require.True(t, ok)
	assert.True(t, rec.IsValid())
	assert.True(t, rec.IsValid())

	rec.PCT.Valid = false
	assert.False(t, rec.IsValid())
	assert.False(t, rec.IsValid())

	rec.PCT.Valid = true
	assert.True(t, rec.IsValid())

	rec, ok = Parse("v=DMARC1; p=reject; adkim=x")
	require.True(t, ok)
	assert.False(t, rec.IsValid())
	assert.Equal(t, rec.IsValid(), rec.IsValid())
	rec.ADKIM = explicit("s", AlignmentStrict, true)
	assert.True(t, rec.IsValid())
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"v=DMARC1;p=reject", "v=DMARC1; p=reject;"},
		{"v=DMARC1;p=none!!!garbage", "v=DMARC1; p=none;"},
		{
			"v=DMARC1; p=quarantine; sp=none; pct=150; fo=1:d; rua=mailto:a@example.com , mailto:b@example.com; adkim=s",
			"v=DMARC1; p=quarantine; adkim=s; fo=1:d; pct=150; rua=mailto:a@example.com,mailto:b@example.com; sp=none;",
		},
	}
	for _, tc := range tests {
		rec, ok := Parse(tc.in)
		require.True(t, ok)
		assert.Equal(t, tc.want, rec.Normalize())
	}
}

func TestRecordEqual(t *testing.T) {
	t.Parallel()

	a, _ := Parse("v=DMARC1;p=reject;pct=50")
	b, _ := Parse("v=DMARC1 ; p=reject ; pct = 50 ; x=y")
	c, _ := Parse("v=DMARC1;p=reject;pct=51")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}
