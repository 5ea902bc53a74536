package main

import (
	"context"

	"ticketwatch/cmd/ticketwatch/commands"
	"ticketwatch/lib/serviceutil"
	"ticketwatch/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "ticketwatch")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer tel.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}
