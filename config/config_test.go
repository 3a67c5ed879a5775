package config

import "testing"

func TestVarSetValueNotifiesOnChange(t *testing.T) {
	v := NewVar("test.key", 10)

	var gotOld, gotNew int
	calls := 0
	v.AddListener(func(old, new int) {
		calls++
		gotOld, gotNew = old, new
	})

	v.SetValue(10) // same value, no call expected
	if calls != 0 {
		t.Errorf("expected no listener call for an unchanged value, got %d", calls)
	}

	v.SetValue(20)
	if calls != 1 {
		t.Fatalf("expected exactly one listener call, got %d", calls)
	}
	if gotOld != 10 || gotNew != 20 {
		t.Errorf("expected (10, 20), got (%d, %d)", gotOld, gotNew)
	}
	if v.Value() != 20 {
		t.Errorf("expected Value() to return 20, got %d", v.Value())
	}
}

func TestVarMultipleListeners(t *testing.T) {
	v := NewVar("test.multi", "a")
	var calls []string
	v.AddListener(func(old, new string) { calls = append(calls, "first:"+new) })
	v.AddListener(func(old, new string) { calls = append(calls, "second:"+new) })

	v.SetValue("b")

	want := []string{"first:b", "second:b"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("expected %v, got %v", want, calls)
			break
		}
	}
}

func TestTCPConnectTimeoutDefault(t *testing.T) {
	if got := TCPConnectTimeoutMillis.Value(); got != 5000 {
		t.Errorf("expected default tcp.connect.timeout of 5000ms, got %d", got)
	}
}
