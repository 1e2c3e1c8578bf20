package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"filmtrack/backend/internal/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.Me(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := a.service.ListMaterials(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, materials)
}

func (a *API) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req domain.MaterialCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	material, err := a.service.CreateMaterial(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, material)
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	materials, err := a.service.LowStockMaterials(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, materials)
}

func (a *API) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	material, err := a.service.GetMaterial(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, material)
}

func (a *API) handleUpdateMaterial(w http.ResponseWriter, r *http.Request) {
	var req domain.MaterialUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	material, err := a.service.UpdateMaterial(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, material)
}

func (a *API) handleMaterialLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := a.service.MaterialLedger(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (a *API) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	history, err := a.service.MaterialPriceHistory(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) handleListStockTransactions(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000)
	txs, err := a.service.ListStockTransactions(r.Context(), r.URL.Query().Get("material_id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (a *API) handleCreateStockTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.StockTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.AppendStockTransaction(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	repair := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("repair")), "true")
	result, err := a.service.ReconcileBalances(r.Context(), repair)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleProductMovements(w http.ResponseWriter, r *http.Request) {
	movements, err := a.service.ListProductMovements(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListProductionOrders(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductionOrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CreateProductionOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.TransitionProductionOrder(r.Context(), r.PathValue("id"), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleListConsumptions(w http.ResponseWriter, r *http.Request) {
	consumptions, err := a.service.ListConsumptions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, consumptions)
}

func (a *API) handleCreateConsumption(w http.ResponseWriter, r *http.Request) {
	var req domain.ConsumptionCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	consumption, err := a.service.CreateConsumption(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, consumption)
}

func (a *API) handleListDaily(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListDailyConsumptions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleCreateDaily(w http.ResponseWriter, r *http.Request) {
	var req domain.DailyConsumptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	record, err := a.service.CreateDailyConsumption(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (a *API) handleUpdateDaily(w http.ResponseWriter, r *http.Request) {
	var req domain.DailyConsumptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	record, err := a.service.UpdateDailyConsumption(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) handleDeleteDaily(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteDailyConsumption(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListGas(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListGasConsumptions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleCreateGas(w http.ResponseWriter, r *http.Request) {
	var req domain.GasConsumptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	record, err := a.service.CreateGasConsumption(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (a *API) handleUpdateGas(w http.ResponseWriter, r *http.Request) {
	var req domain.GasConsumptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	record, err := a.service.UpdateGasConsumption(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) handleDeleteGas(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteGasConsumption(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type manufacturingResponse struct {
	Record       domain.ManufacturingRecord `json:"record"`
	Consumptions []domain.Consumption       `json:"consumptions"`
}

func (a *API) handleListManufacturing(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListManufacturing(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleCreateManufacturing(w http.ResponseWriter, r *http.Request) {
	var req domain.ManufacturingCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	record, consumptions, err := a.service.CreateManufacturing(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, manufacturingResponse{Record: record, Consumptions: consumptions})
}

func (a *API) handleUpdateManufacturing(w http.ResponseWriter, r *http.Request) {
	var req domain.ManufacturingCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	record, consumptions, err := a.service.UpdateManufacturing(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manufacturingResponse{Record: record, Consumptions: consumptions})
}

func (a *API) handleDeleteManufacturing(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteManufacturing(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListShipments(w http.ResponseWriter, r *http.Request) {
	shipments, err := a.service.ListShipments(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shipments)
}

func (a *API) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var req domain.ShipmentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shipment, err := a.service.CreateShipment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shipment)
}

func (a *API) handleShipmentStatus(w http.ResponseWriter, r *http.Request) {
	shipment, err := a.service.TransitionShipment(r.Context(), r.PathValue("id"), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shipment)
}

func (a *API) handleDeleteShipment(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteShipment(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	dispatches, err := a.service.ListDispatches(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispatches)
}

func (a *API) handleCreateDispatch(w http.ResponseWriter, r *http.Request) {
	var req domain.DispatchCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dispatch, err := a.service.CreateDispatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dispatch)
}

func (a *API) handleDeleteDispatch(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteDispatch(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCostAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := a.service.CostAnalysis(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (a *API) handleCostAnalysisExport(w http.ResponseWriter, r *http.Request) {
	data, err := a.service.ExportCostAnalysis(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAttachment(w, fmt.Sprintf("cost-analysis-%s.xlsx", time.Now().UTC().Format("20060102")), data)
}

func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.DashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleFinishedStock(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.FinishedStock(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleFinishedStockExport(w http.ResponseWriter, r *http.Request) {
	data, err := a.service.ExportFinishedStock(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAttachment(w, fmt.Sprintf("stock-%s.xlsx", time.Now().UTC().Format("20060102")), data)
}

func writeAttachment(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleAreaPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, a.service.PreviewArea(q.Get("width"), q.Get("length"), q.Get("quantity")))
}

func (a *API) handleConsumptionPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, a.service.PreviewConsumption(q.Get("primary"), q.Get("waste")))
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	limit := parsePositiveLimit(q.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
