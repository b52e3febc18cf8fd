package avm1

import (
	"github.com/chazu/avmcore/backend"
)

// ---------------------------------------------------------------------------
// SharedObject
// ---------------------------------------------------------------------------

func (vm *VM) installSharedObject() {
	proto := vm.NewObject()
	vm.protos.sharedObject = proto
	ctor := vm.newConstructor("SharedObject", proto, func(_ *Activation, _ *Object, _ []Value) (Value, error) {
		return Undefined, nil
	}, nil)

	vm.method(ctor, "getLocal", func(act *Activation, _ *Object, args []Value) (Value, error) {
		name, err := act.ToString(arg(args, 0))
		if err != nil || name == "" {
			return Null, err
		}
		so, err := act.vm.sharedObject(act, name)
		if err != nil {
			log.Warningf("SharedObject.getLocal(%q): %s", name, err)
			return Null, nil
		}
		return ObjectValue(so), nil
	})
	vm.method(proto, "flush", func(act *Activation, this *Object, _ []Value) (Value, error) {
		name, ok := this.native.(string)
		if !ok {
			return Bool(false), nil
		}
		data, err := this.Get(act, "data")
		if err != nil {
			return Undefined, err
		}
		fields := map[string]backend.SharedValue{}
		if data.o != nil {
			fields, err = toSharedFields(act, data.o, map[*Object]bool{})
			if err != nil {
				return Undefined, err
			}
		}
		if err := act.vm.shared.Flush(name, fields); err != nil {
			log.Warningf("SharedObject %q flush failed: %s", name, err)
			return Bool(false), nil
		}
		return Bool(true), nil
	})
	vm.method(proto, "clear", func(act *Activation, this *Object, _ []Value) (Value, error) {
		name, ok := this.native.(string)
		if !ok {
			return Undefined, nil
		}
		if err := act.vm.shared.Clear(name); err != nil {
			log.Warningf("SharedObject %q clear failed: %s", name, err)
		}
		this.Define("data", ObjectValue(act.vm.NewObject()), DontDelete)
		return Undefined, nil
	})
	vm.method(proto, "getSize", func(act *Activation, this *Object, _ []Value) (Value, error) {
		data, err := this.Get(act, "data")
		if err != nil || data.o == nil {
			return Number(0), err
		}
		fields, err := toSharedFields(act, data.o, map[*Object]bool{})
		if err != nil {
			return Undefined, err
		}
		b, err := backend.MarshalShared(fields)
		if err != nil {
			return Number(0), nil
		}
		return Number(float64(len(b))), nil
	})
}

// sharedObject returns the cached SharedObject for name, loading its data
// from storage the first time.
func (vm *VM) sharedObject(act *Activation, name string) (*Object, error) {
	if so, ok := vm.sharedCache[name]; ok {
		return so, nil
	}
	fields, err := vm.shared.Load(name)
	if err != nil {
		return nil, err
	}
	so := vm.newObjectWithProto(ObjectValue(vm.protos.sharedObject))
	so.class = "SharedObject"
	so.native = name
	data := vm.NewObject()
	for k, v := range fields {
		data.Define(k, vm.fromShared(v), 0)
	}
	so.Define("data", ObjectValue(data), DontDelete)
	vm.sharedCache[name] = so
	return so, nil
}

// toSharedFields converts an object's enumerable properties. Functions are
// skipped and an object already on the path is stored as undefined, which
// breaks reference cycles.
func toSharedFields(act *Activation, o *Object, path map[*Object]bool) (map[string]backend.SharedValue, error) {
	path[o] = true
	defer delete(path, o)
	fields := make(map[string]backend.SharedValue)
	for _, k := range o.Keys(act) {
		v, err := o.Get(act, k)
		if err != nil {
			return nil, err
		}
		if v.o != nil && v.o.fn != nil {
			continue
		}
		sv, err := toShared(act, v, path)
		if err != nil {
			return nil, err
		}
		fields[k] = sv
	}
	return fields, nil
}

func toShared(act *Activation, v Value, path map[*Object]bool) (backend.SharedValue, error) {
	switch v.kind {
	case KindUndefined:
		return backend.SharedValue{Kind: backend.SharedUndefined}, nil
	case KindNull:
		return backend.SharedValue{Kind: backend.SharedNull}, nil
	case KindBool:
		return backend.SharedValue{Kind: backend.SharedBool, Bool: v.AsBool()}, nil
	case KindNumber:
		return backend.SharedValue{Kind: backend.SharedNumber, Number: v.n}, nil
	case KindString:
		return backend.SharedValue{Kind: backend.SharedString, String: v.s}, nil
	}
	if path[v.o] {
		return backend.SharedValue{Kind: backend.SharedUndefined}, nil
	}
	if v.o.array {
		path[v.o] = true
		defer delete(path, v.o)
		elems, err := v.o.Elements(act)
		if err != nil {
			return backend.SharedValue{}, err
		}
		items := make([]backend.SharedValue, len(elems))
		for i, e := range elems {
			if items[i], err = toShared(act, e, path); err != nil {
				return backend.SharedValue{}, err
			}
		}
		return backend.SharedValue{Kind: backend.SharedArray, Items: items}, nil
	}
	fields, err := toSharedFields(act, v.o, path)
	if err != nil {
		return backend.SharedValue{}, err
	}
	return backend.SharedValue{Kind: backend.SharedObject, Fields: fields}, nil
}

func (vm *VM) fromShared(sv backend.SharedValue) Value {
	switch sv.Kind {
	case backend.SharedNull:
		return Null
	case backend.SharedBool:
		return Bool(sv.Bool)
	case backend.SharedNumber:
		return Number(sv.Number)
	case backend.SharedString:
		return String(sv.String)
	case backend.SharedArray:
		vs := make([]Value, len(sv.Items))
		for i, item := range sv.Items {
			vs[i] = vm.fromShared(item)
		}
		return ObjectValue(vm.NewArray(vs))
	case backend.SharedObject:
		o := vm.NewObject()
		for k, v := range sv.Fields {
			o.Define(k, vm.fromShared(v), 0)
		}
		return ObjectValue(o)
	}
	return Undefined
}

// ---------------------------------------------------------------------------
// XMLSocket
// ---------------------------------------------------------------------------

func (vm *VM) installXMLSocket() {
	proto := vm.NewObject()
	vm.protos.xmlSocket = proto
	vm.newConstructor("XMLSocket", proto, func(_ *Activation, _ *Object, _ []Value) (Value, error) {
		return Undefined, nil
	}, func(_ *Activation, this *Object, _ []Value) (Value, error) {
		this.class = "XMLSocket"
		return ObjectValue(this), nil
	})

	vm.method(proto, "connect", func(act *Activation, this *Object, args []Value) (Value, error) {
		vm := act.vm
		if sock, ok := this.native.(backend.Socket); ok {
			sock.Close()
			delete(vm.sockets, sock.ID())
			this.native = nil
		}
		host := "localhost"
		if h := arg(args, 0); h.kind != KindUndefined && h.kind != KindNull {
			var err error
			if host, err = act.ToString(h); err != nil {
				return Undefined, err
			}
		}
		port, err := act.toInt32(arg(args, 1))
		if err != nil {
			return Undefined, err
		}
		if vm.sink == nil {
			log.Warning("XMLSocket.connect: no socket event sink configured")
			return Bool(false), nil
		}
		sock, err := vm.backends.Navigator.ConnectSocket(host, int(port), vm.sink)
		if err != nil {
			log.Warningf("XMLSocket.connect(%s:%d): %s", host, port, err)
			return Bool(false), nil
		}
		this.native = sock
		vm.sockets[sock.ID()] = this
		return Bool(true), nil
	})
	vm.method(proto, "send", func(act *Activation, this *Object, args []Value) (Value, error) {
		sock, ok := this.native.(backend.Socket)
		if !ok {
			return Undefined, nil
		}
		s, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		if err := sock.Send([]byte(s)); err != nil {
			log.Warningf("XMLSocket.send: %s", err)
		}
		return Undefined, nil
	})
	vm.method(proto, "close", func(act *Activation, this *Object, _ []Value) (Value, error) {
		sock, ok := this.native.(backend.Socket)
		if !ok {
			return Undefined, nil
		}
		sock.Close()
		delete(act.vm.sockets, sock.ID())
		this.native = nil
		return Undefined, nil
	})
}

// DeliverSocketConnected runs the onConnect handler of the socket with the
// given id. A failed connection also forgets the socket.
func (vm *VM) DeliverSocketConnected(id string, ok bool) error {
	obj, found := vm.sockets[id]
	if !found {
		return nil
	}
	if !ok {
		delete(vm.sockets, id)
		obj.native = nil
	}
	_, err := obj.CallMethod(vm.RootActivation(), "onConnect", []Value{Bool(ok)})
	return err
}

// DeliverSocketData runs the onData handler with the received text.
func (vm *VM) DeliverSocketData(id string, data []byte) error {
	obj, found := vm.sockets[id]
	if !found {
		return nil
	}
	_, err := obj.CallMethod(vm.RootActivation(), "onData", []Value{String(string(data))})
	return err
}

// DeliverSocketClosed runs the onClose handler and forgets the socket.
func (vm *VM) DeliverSocketClosed(id string) error {
	obj, found := vm.sockets[id]
	if !found {
		return nil
	}
	delete(vm.sockets, id)
	obj.native = nil
	_, err := obj.CallMethod(vm.RootActivation(), "onClose", nil)
	return err
}
