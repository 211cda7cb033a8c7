package storage

import logx "gstaldergeist/pkg/logx"

func testLogger() logx.Logger { return logx.Nop() }
