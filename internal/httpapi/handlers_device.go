package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sensorhost/sensorhost/internal/registry"
)

// maxBinaryUpload bounds the multipart body accepted by start-device-init:
// driver shared libraries are small native binaries, not media files.
const maxBinaryUpload = 64 << 20 // 64 MiB

type startDeviceInitResponse struct {
	ID         uint32                   `json:"id"`
	ConnParams []ConnParamDescriptorDTO `json:"conn_params"`
}

// handleStartDeviceInit godoc
//
//	@Summary		Begin a device's two-phase init
//	@Description	Accepts a display name and a driver shared-library binary, multipart/form-data.
//	@Tags			devices
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			name	formData	string	true	"device display name"
//	@Param			binary	formData	file	true	"driver shared library"
//	@Success		200	{object}	startDeviceInitResponse
//	@Failure		400	{object}	Problem
//	@Router			/api/v1/start-device-init [post]
func (s *Server) handleStartDeviceInit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBinaryUpload)
	if err := r.ParseMultipartForm(maxBinaryUpload); err != nil {
		BadRequest(w, "malformed multipart body", r.URL.Path)
		return
	}

	name := r.FormValue("name")
	file, _, err := r.FormFile("binary")
	if err != nil {
		BadRequest(w, "missing \"binary\" form file", r.URL.Path)
		return
	}
	defer file.Close()

	id, descriptors, err := s.controller.StartDeviceInit(r.Context(), name, file)
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}

	writeJSON(w, http.StatusOK, startDeviceInitResponse{
		ID:         uint32(id),
		ConnParams: connParamsToDTO(descriptors),
	})
}

type connectDeviceRequest struct {
	ID     uint32         `json:"id"`
	Values []ConfEntryDTO `json:"values"`
}

// handleConnectDevice godoc
//
//	@Summary	Apply connection values to a device mid-init
//	@Tags		devices
//	@Accept		json
//	@Produce	json
//	@Param		body	body	connectDeviceRequest	true	"connection values"
//	@Success	200	{object}	map[string]string
//	@Failure	400	{object}	Problem
//	@Failure	404	{object}	Problem
//	@Router		/api/v1/connect-device [post]
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	var req connectDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}

	entries, err := entriesToModule(req.Values)
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}

	comErr, err := s.controller.ConnectDevice(r.Context(), registry.DeviceID(req.ID), entries)
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": comErr.String()})
}

type obtainDeviceConfInfoRequest struct {
	ID uint32 `json:"id"`
}

// handleObtainDeviceConfInfo godoc
//
//	@Summary	Fetch a device's configuration tree
//	@Tags		devices
//	@Accept		json
//	@Produce	json
//	@Param		body	body	obtainDeviceConfInfoRequest	true	"device id"
//	@Success	200	{array}	ConfigInfoDTO
//	@Failure	404	{object}	Problem
//	@Router		/api/v1/obtain-device-conf-info [post]
func (s *Server) handleObtainDeviceConfInfo(w http.ResponseWriter, r *http.Request) {
	var req obtainDeviceConfInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}

	tree, err := s.controller.ObtainDeviceConfInfo(r.Context(), registry.DeviceID(req.ID))
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, configInfoToDTO(tree))
}

type configureDeviceRequest struct {
	ID      uint32         `json:"id"`
	Entries []ConfEntryDTO `json:"entries"`
}

// handleConfigureDevice godoc
//
//	@Summary	Apply configuration, bind sensors, and start streaming
//	@Tags		devices
//	@Accept		json
//	@Produce	json
//	@Param		body	body	configureDeviceRequest	true	"configuration entries"
//	@Success	200	{object}	map[string]string
//	@Failure	400	{object}	Problem
//	@Failure	404	{object}	Problem
//	@Router		/api/v1/configure-device [post]
func (s *Server) handleConfigureDevice(w http.ResponseWriter, r *http.Request) {
	var req configureDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}

	entries, err := entriesToModule(req.Entries)
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}

	comErr, err := s.controller.ConfigureDevice(r.Context(), registry.DeviceID(req.ID), entries)
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": comErr.String()})
}

type interruptDeviceInitRequest struct {
	ID uint32 `json:"id"`
}

// handleInterruptDeviceInit godoc
//
//	@Summary	Abort a device still in the Device init phase
//	@Tags		devices
//	@Accept		json
//	@Produce	json
//	@Param		body	body	interruptDeviceInitRequest	true	"device id"
//	@Success	204
//	@Failure	400	{object}	Problem
//	@Failure	404	{object}	Problem
//	@Router		/api/v1/interrupt-device-init [post]
func (s *Server) handleInterruptDeviceInit(w http.ResponseWriter, r *http.Request) {
	var req interruptDeviceInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}

	if err := s.controller.InterruptDeviceInit(r.Context(), registry.DeviceID(req.ID)); err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDeviceList godoc
//
//	@Summary	List every fully-configured device
//	@Tags		devices
//	@Produce	json
//	@Success	200	{array}	DeviceListItemDTO
//	@Router		/api/v1/get-device-list [post]
func (s *Server) handleGetDeviceList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, deviceListingToDTO(s.controller.ListDevices()))
}

type getDeviceSensorInfoRequest struct {
	ID uint32 `json:"id"`
}

// handleGetDeviceSensorInfo godoc
//
//	@Summary	List the sensors bound to a device
//	@Tags		devices
//	@Accept		json
//	@Produce	json
//	@Param		body	body	getDeviceSensorInfoRequest	true	"device id"
//	@Success	200	{array}	SensorTypeInfoDTO
//	@Failure	404	{object}	Problem
//	@Router		/api/v1/get-device-sensor-info [post]
func (s *Server) handleGetDeviceSensorInfo(w http.ResponseWriter, r *http.Request) {
	var req getDeviceSensorInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}

	sensors, err := s.controller.DeviceSensors(registry.DeviceID(req.ID))
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sensorsToDTO(sensors))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
