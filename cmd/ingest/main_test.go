package main

import "testing"

func TestExitCodesMatchTheBatchIngestionContract(t *testing.T) {
	if exitSuccess != 0 || exitConfig != 1 || exitSource != 2 || exitPartial != 3 {
		t.Fatalf("exit codes drifted from the documented contract: success=%d config=%d source=%d partial=%d",
			exitSuccess, exitConfig, exitSource, exitPartial)
	}
}
