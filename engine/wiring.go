package engine

import (
	"fmt"

	"floorcore/messaging"
)

func (e *Engine) wireEventHandlers() {
	// Every accepted event: refresh the live cache and fan out to subscribers.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(AcceptedEvent).Event
		e.stateCache.RefreshWorkcenter(ev.WorkcenterID)

		env := messaging.NewEnvelope("execution_event", e.cfg.PlantID, ev)
		data, _ := env.Encode()
		topic := messaging.EventTopic(e.cfg.Messaging.EventTopicPrefix, "execution")
		e.db.EnqueueOutbox(topic, data, "execution_event")
	}, EventAccepted)

	// Step transitions: audit trail.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StepTransitionEvent)
		e.db.AppendAudit("step_execution",
			fmt.Sprintf("%d/%d/%d", ev.OrderID, ev.StepID, ev.LotID),
			"transition", ev.OldStatus, ev.NewStatus, "system")
	}, EventStepTransition)

	// Order status changes: audit, fan out, report closure to the ERP.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderStatusChangedEvent)
		e.logFn("engine: order %d %s -> %s", ev.OrderID, ev.OldStatus, ev.NewStatus)
		e.db.AppendAudit("order", fmt.Sprintf("%d", ev.OrderID), "status_changed", ev.OldStatus, ev.NewStatus, "system")

		env := messaging.NewEnvelope("order_status", e.cfg.PlantID, ev)
		data, _ := env.Encode()
		topic := messaging.EventTopic(e.cfg.Messaging.EventTopicPrefix, "orders")
		e.db.EnqueueOutbox(topic, data, "order_status")

		if ev.NewStatus == "CLOSED" {
			e.handleOrderClosed(ev.OrderID)
		}
	}, EventOrderStatusChanged)

	// Quality records: audit.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(QualityRecordedEvent)
		e.db.AppendAudit("quality_record", fmt.Sprintf("%d", ev.RecordID),
			ev.Disposition, "", fmt.Sprintf("code=%s qty=%d", ev.ReasonCode, ev.Qty), "system")
	}, EventQualityRecorded)

	// Downtime lifecycle: flip the live flag, audit, fan out.
	e.Events.SubscribeTypes(func(evt Event) {
		d := evt.Payload.(DowntimeOpenedEvent).Downtime
		e.stateCache.SetDown(d.WorkcenterID, true)
		e.db.AppendAudit("downtime", fmt.Sprintf("%d", d.ID), "opened", "", d.ReasonCode, "system")

		env := messaging.NewEnvelope("downtime_opened", e.cfg.PlantID, d)
		data, _ := env.Encode()
		topic := messaging.EventTopic(e.cfg.Messaging.EventTopicPrefix, "downtime")
		e.db.EnqueueOutbox(topic, data, "downtime_opened")
	}, EventDowntimeOpened)

	e.Events.SubscribeTypes(func(evt Event) {
		d := evt.Payload.(DowntimeClosedEvent).Downtime
		e.stateCache.SetDown(d.WorkcenterID, false)
		e.db.AppendAudit("downtime", fmt.Sprintf("%d", d.ID), "closed", "",
			fmt.Sprintf("micro=%v", d.IsMicroStop), "system")

		env := messaging.NewEnvelope("downtime_closed", e.cfg.PlantID, d)
		data, _ := env.Encode()
		topic := messaging.EventTopic(e.cfg.Messaging.EventTopicPrefix, "downtime")
		e.db.EnqueueOutbox(topic, data, "downtime_closed")
	}, EventDowntimeClosed)

	// OEE snapshots: fan out to dashboards.
	e.Events.SubscribeTypes(func(evt Event) {
		s := evt.Payload.(OEESnapshotEvent).Snapshot
		env := messaging.NewEnvelope("oee_snapshot", e.cfg.PlantID, s)
		data, _ := env.Encode()
		topic := messaging.EventTopic(e.cfg.Messaging.EventTopicPrefix, "oee")
		e.db.EnqueueOutbox(topic, data, "oee_snapshot")
	}, EventOEESnapshot)

	// Connection status: log only.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s", ev.Detail)
	}, EventERPConnected, EventERPDisconnected, EventMessagingConnected, EventMessagingDisconnected)
}

// handleOrderClosed reports final quantities back to the ERP when every step
// of an order has completed.
func (e *Engine) handleOrderClosed(orderID int64) {
	order, err := e.db.GetProductionOrder(orderID)
	if err != nil {
		e.logFn("engine: get order %d for closure: %v", orderID, err)
		return
	}
	if err := e.erpClient.ReportCompletion(order.ERPOrderCode, order.ExecutedGoodQty, order.ExecutedTotalQty); err != nil {
		e.logFn("engine: report completion %s: %v", order.ERPOrderCode, err)
		return
	}
	e.db.AppendAudit("order", order.ERPOrderCode, "reported",
		"", fmt.Sprintf("good=%d total=%d", order.ExecutedGoodQty, order.ExecutedTotalQty), "system")
}
