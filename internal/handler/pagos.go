package handler

import (
	"net/http"

	"clubpos/internal/dto"
	"clubpos/internal/middleware"
	"clubpos/internal/service"

	"github.com/gin-gonic/gin"
)

type PagosHandler struct{ svc service.PagoService }

func NewPagosHandler(svc service.PagoService) *PagosHandler { return &PagosHandler{svc: svc} }

// Registrar godoc
// @Summary Registra uno o mas pagos contra una cuenta
// @Tags pagos
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RegistrarPagoRequest true "Lineas de pago"
// @Success 201 {object} dto.LedgerResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.ValidationError
// @Failure 503 {object} apierror.APIError
// @Router /v1/pagos [post]
func (h *PagosHandler) Registrar(c *gin.Context) {
	var req dto.RegistrarPagoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	uid := middleware.UsuarioID(c)
	resp, err := h.svc.RegistrarPago(c.Request.Context(), &uid, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListarTodos godoc
// @Summary Lista los ultimos pagos registrados
// @Tags pagos
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Cantidad maxima" default(100)
// @Success 200 {array} dto.PagoResponse
// @Router /v1/pagos [get]
func (h *PagosHandler) ListarTodos(c *gin.Context) {
	resp, err := h.svc.ListarTodos(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Ledger godoc
// @Summary Obtiene el estado de cuenta
// @Tags cuentas
// @Produce json
// @Security BearerAuth
// @Param ref path string true "Referencia de cuenta"
// @Success 200 {object} dto.LedgerResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/cuentas/{ref}/ledger [get]
func (h *PagosHandler) Ledger(c *gin.Context) {
	resp, err := h.svc.ObtenerLedger(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PagosCuenta lists the payment legs of one bill, oldest first.
func (h *PagosHandler) PagosCuenta(c *gin.Context) {
	resp, err := h.svc.ListarPagos(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Logs godoc
// @Summary Historial de auditoria de una cuenta
// @Tags cuentas
// @Produce json
// @Security BearerAuth
// @Param ref path string true "Referencia de cuenta"
// @Param page query int false "Pagina" default(1)
// @Param page_size query int false "Tamano de pagina" default(20)
// @Success 200 {object} dto.LogPagoListResponse
// @Router /v1/cuentas/{ref}/logs [get]
func (h *PagosHandler) Logs(c *gin.Context) {
	resp, err := h.svc.ListarLogs(c.Request.Context(), c.Param("ref"), queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Descuento godoc
// @Summary Aplica un descuento a una cuenta
// @Tags cuentas
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param ref path string true "Referencia de cuenta"
// @Param body body dto.DescuentoRequest true "Descuento"
// @Success 200 {object} dto.LedgerResponse
// @Router /v1/cuentas/{ref}/descuento [post]
func (h *PagosHandler) Descuento(c *gin.Context) {
	var req dto.DescuentoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AplicarDescuento(c.Request.Context(), c.Param("ref"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Reembolso godoc
// @Summary Registra un reembolso sobre una cuenta
// @Tags cuentas
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param ref path string true "Referencia de cuenta"
// @Param body body dto.ReembolsoRequest true "Reembolso"
// @Success 200 {object} dto.LedgerResponse
// @Router /v1/cuentas/{ref}/reembolso [post]
func (h *PagosHandler) Reembolso(c *gin.Context) {
	var req dto.ReembolsoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RegistrarReembolso(c.Request.Context(), c.Param("ref"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Cerrar godoc
// @Summary Cierra una cuenta saldada
// @Tags cuentas
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param ref path string true "Referencia de cuenta"
// @Success 200 {object} dto.LedgerResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cuentas/{ref}/cerrar [post]
func (h *PagosHandler) Cerrar(c *gin.Context) {
	var req dto.CerrarCuentaRequest
	if c.Request.ContentLength != 0 && !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CerrarCuenta(c.Request.Context(), c.Param("ref"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
