package job

import "testing"

func TestRequestTypeString(t *testing.T) {
	cases := map[RequestType]string{
		TypeInvalid:     "invalid",
		TypePing:        "ping",
		TypeExecuteHook: "execute_hook",
	}
	for rt, want := range cases {
		if got := rt.String(); got != want {
			t.Errorf("RequestType(%d).String() = %q, want %q", rt, got, want)
		}
	}
}
