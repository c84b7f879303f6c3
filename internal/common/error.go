package common

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrNo struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

const (
	SUCCESS     = 0
	SERVICE_ERR = iota + 10000
	REQUEST_INVALID
	TOKEN_INVALID
	GENERATION_REQUEST_INVALID
	PIPELINE_NOT_EXISTS
	PIPELINE_START_FAIL
	PIPELINE_STATUS_FAIL
	PIPELINE_LIST_FAIL
)

var errorMsg = map[int]string{
	SUCCESS:                    "success",
	SERVICE_ERR:                "service error",
	REQUEST_INVALID:            "request invalid",
	TOKEN_INVALID:              "token invalid",
	GENERATION_REQUEST_INVALID: "generation request invalid",
	PIPELINE_NOT_EXISTS:        "pipeline not exists",
	PIPELINE_START_FAIL:        "pipeline starts fail",
	PIPELINE_STATUS_FAIL:       "pipeline status check fail",
	PIPELINE_LIST_FAIL:         "pipeline list fail",
}

var errorStatus = map[int]int{
	SUCCESS:                    http.StatusOK,
	SERVICE_ERR:                http.StatusInternalServerError,
	REQUEST_INVALID:            http.StatusBadRequest,
	TOKEN_INVALID:              http.StatusUnauthorized,
	GENERATION_REQUEST_INVALID: http.StatusBadRequest,
	PIPELINE_NOT_EXISTS:        http.StatusNotFound,
	PIPELINE_START_FAIL:        http.StatusInternalServerError,
	PIPELINE_STATUS_FAIL:       http.StatusInternalServerError,
	PIPELINE_LIST_FAIL:         http.StatusInternalServerError,
}

func (e ErrNo) Error() string {
	return fmt.Sprintf("err_code=%d, err_msg=%s", e.ErrCode, e.ErrMsg)
}

// HTTPStatus is the response status for the code.
func (e ErrNo) HTTPStatus() int {
	if s, ok := errorStatus[e.ErrCode]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func NewErrNo(errCode int) error {
	return ErrNo{
		ErrCode: errCode,
		ErrMsg:  errorMsg[errCode],
	}
}

// WithMsg returns the code with a more specific message.
func WithMsg(errCode int, msg string) error {
	return ErrNo{
		ErrCode: errCode,
		ErrMsg:  msg,
	}
}

func ConvertErr(err error) ErrNo {
	e := ErrNo{}
	if errors.As(err, &e) {
		return e
	}
	e = ErrNo{
		ErrCode: SERVICE_ERR,
		ErrMsg:  errorMsg[SERVICE_ERR],
	}
	return e
}
