// Package ftpclient — TLS FTP-сессии к серверу с restore-каталогами.
//
// Client.Open повторяет подключение при сетевых ошибках бесконечно,
// а отказы протокола (login, cwd) возвращает сразу как ErrLoginRejected
// и ErrDirNotFound. Session покрывает list/size/retr/stor.
package ftpclient
