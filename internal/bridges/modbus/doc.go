// Package modbus polls a Modbus TCP or RTU device and feeds the readings
// into the telemetry controller.
//
// Each configured register maps one device value onto a telemetry key (or
// an attribute key). Coils and discrete inputs decode to bool; holding and
// input registers decode to integers, or floats when a scale is set.
//
//	bus, _ := modbus.Dial(cfg.Modbus)
//	regs, _ := modbus.RegistersFromConfig(cfg.Modbus.Registers)
//	poller, _ := modbus.NewPoller(bus.Client(), regs, log)
//	readings := make(chan []modbus.Reading, 1)
//	poller.Start(ctx, cfg.Modbus.PollInterval, readings)
//	...
//	_ = modbus.Apply(ctrl, <-readings)
package modbus
