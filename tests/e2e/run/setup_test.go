package run

import (
	"fmt"
	"os"
	"testing"

	"catalog-sync/tests/testutil"
)

// c 包内共享的 E2E 客户端；API Server 未运行时整包静默跳过
var c *testutil.E2EClient

func TestMain(m *testing.M) {
	client, err := testutil.SetupE2EClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "skipping run e2e: %v\n", err)
		os.Exit(0)
	}
	c = client
	os.Exit(m.Run())
}
