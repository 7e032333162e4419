package qdrant

import "testing"

func TestEncodeSparseQueryDeterministic(t *testing.T) {
	v1 := encodeSparseQuery("reciprocal rank fusion for arXiv:2104.08663")
	v2 := encodeSparseQuery("reciprocal rank fusion for arXiv:2104.08663")
	if len(v1.Indices) != len(v2.Indices) || len(v1.Values) != len(v2.Values) {
		t.Fatalf("vector sizes mismatch: v1=%d/%d v2=%d/%d", len(v1.Indices), len(v1.Values), len(v2.Indices), len(v2.Values))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] {
			t.Fatalf("indices mismatch at %d: %d vs %d", i, v1.Indices[i], v2.Indices[i])
		}
		if v1.Values[i] != v2.Values[i] {
			t.Fatalf("values mismatch at %d: %f vs %f", i, v1.Values[i], v2.Values[i])
		}
	}
}

func TestEncodeSparseQuerySortsIndices(t *testing.T) {
	v := encodeSparseQuery("zulu alpha beta gamma")
	if len(v.Indices) == 0 {
		t.Fatalf("expected non-empty sparse vector")
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i-1] > v.Indices[i] {
			t.Fatalf("indices not sorted at %d: %d > %d", i, v.Indices[i-1], v.Indices[i])
		}
	}
}

func TestEncodeSparseQueryRepeatedTermSaturates(t *testing.T) {
	once := encodeSparseQuery("transformer")
	thrice := encodeSparseQuery("transformer transformer transformer")
	if len(once.Values) != 1 || len(thrice.Values) != 1 {
		t.Fatalf("expected single-term vectors, got %d and %d terms", len(once.Values), len(thrice.Values))
	}
	if thrice.Values[0] <= once.Values[0] {
		t.Fatalf("expected repeated term to weigh more: %f vs %f", thrice.Values[0], once.Values[0])
	}
	if thrice.Values[0] >= once.Values[0]*3 {
		t.Fatalf("expected sublinear growth, got %f vs %f", thrice.Values[0], once.Values[0])
	}
}

func TestEncodeSparseQueryEmptyNoiseInput(t *testing.T) {
	v := encodeSparseQuery("___---!!!")
	if len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatalf("expected empty sparse vector, got %+v", v)
	}
}

func TestTokenizeAlphaNumUnicodeAndDigitsStability(t *testing.T) {
	tokens := tokenizeAlphaNum("Привет arXiv_2104 версия-2")
	if len(tokens) == 0 {
		t.Fatalf("expected tokens, got empty")
	}
	foundArxiv := false
	foundNum := false
	for _, tok := range tokens {
		if tok == "arxiv" {
			foundArxiv = true
		}
		if tok == "2104" {
			foundNum = true
		}
	}
	if !foundArxiv || !foundNum {
		t.Fatalf("expected arxiv and 2104 tokens, got %v", tokens)
	}
}
